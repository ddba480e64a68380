package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ReadStrategy bounds how long one exchange waits for its feedback line.
type ReadStrategy struct {
	Settle time.Duration
	Total  time.Duration
	Poll   time.Duration
}

// ProgressKey selects how a cycle outcome is reported in progress records.
type ProgressKey string

const (
	ProgressKeyStatus    ProgressKey = "cycle_status"
	ProgressKeyCompleted ProgressKey = "cycle_completed"
)

// Profile describes one device family: its codes and how strictly the
// executor treats a command that did not get the expected answer.
type Profile struct {
	Name        string
	Description string

	SuccessCode int64
	TimeoutCode int64
	ZeroIsAck   bool
	Accepts     OutcomeKind

	AbortOnFailure  bool
	EmptyIsTimeout  bool
	ResetBeforeSend bool
	FlushAfterSend  bool
	DelayAlways     bool

	Read        ReadStrategy
	OpenSettle  time.Duration
	ProgressKey ProgressKey

	Defaults ProfileDefaults
}

// ProfileDefaults are the hardware settings a run starts from when the
// operator does not override them.
type ProfileDefaults struct {
	Port     string
	BaudRate int
	Cycles   int
	Delay    time.Duration
	Commands []string
}

var QBA = Profile{
	Name:        "qba",
	Description: "QBA controller: success 0, timeout 13, tolerant cycles",
	SuccessCode: 0,
	TimeoutCode: 13,
	Accepts:     OutcomeSuccess,
	DelayAlways: true,
	Read: ReadStrategy{
		Total: time.Second,
		Poll:  time.Second,
	},
	ProgressKey: ProgressKeyStatus,
	Defaults: ProfileDefaults{
		Port:     "COM5",
		BaudRate: 115200,
		Cycles:   5,
		Delay:    3 * time.Second,
		Commands: []string{
			"p:1:b1:1:200:2:200:",
			"p:1:b2:1:200:2:200:",
			"p:1:b3:1:200:2:200:",
		},
	},
}

var QSwipe = Profile{
	Name:            "qswipe",
	Description:     "QSwipe reader: success 48, timeout 50, 0 acknowledges, strict cycles",
	SuccessCode:     48,
	TimeoutCode:     50,
	ZeroIsAck:       true,
	Accepts:         OutcomeExpectedZero,
	AbortOnFailure:  true,
	EmptyIsTimeout:  true,
	ResetBeforeSend: true,
	FlushAfterSend:  true,
	Read: ReadStrategy{
		Settle: 200 * time.Millisecond,
		Total:  2 * time.Second,
		Poll:   100 * time.Millisecond,
	},
	OpenSettle:  500 * time.Millisecond,
	ProgressKey: ProgressKeyCompleted,
	Defaults: ProfileDefaults{
		Port:     "COM3",
		BaudRate: 115200,
		Cycles:   5,
		Delay:    3 * time.Second,
		Commands: []string{
			"e:s:c:e:4:", "i:",
			"e:s:c:e:3:", "i:",
			"e:s:c:e:2:", "i:",
			"e:s:c:e:1:", "i:",
		},
	},
}

var profiles = map[string]Profile{
	QBA.Name:    QBA,
	QSwipe.Name: QSwipe,
}

// LookupProfile resolves a profile by case-insensitive name.
func LookupProfile(name string) (Profile, error) {
	p, ok := profiles[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Profile{}, fmt.Errorf("unknown profile %q (available: %s)", name, strings.Join(ProfileNames(), ", "))
	}
	return p, nil
}

func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Accepted reports whether an outcome lets the cycle proceed.
func (p Profile) Accepted(o Outcome) bool {
	return o.Kind == p.Accepts
}
