package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/msaeedsaeedi/serialsoak/internal/domain"
)

type Publisher interface {
	Publish(topic string, payload []byte) error
}

// MQTTFormatter broadcasts the same progress records as the JSON output,
// plus the final summary, under serialsoak/<instance>/.
type MQTTFormatter struct {
	config *domain.RunConfig
	pub    Publisher
	prefix string
	errOut io.Writer
	warned bool
}

func NewMQTTFormatter(cfg *domain.RunConfig, pub Publisher) *MQTTFormatter {
	return &MQTTFormatter{
		config: cfg,
		pub:    pub,
		prefix: "serialsoak/" + cfg.InstanceID,
		errOut: os.Stderr,
	}
}

func (f *MQTTFormatter) ProgressTopic() string {
	return f.prefix + "/progress"
}

func (f *MQTTFormatter) SummaryTopic() string {
	return f.prefix + "/summary"
}

func (f *MQTTFormatter) GetOutputWriters() (stdout, stderr io.Writer) {
	return nil, nil
}

func (f *MQTTFormatter) OnStart(cycle int) {}

func (f *MQTTFormatter) OnComplete(result domain.CycleResult) {
	f.publish(f.ProgressTopic(), NewProgressRecord(f.config.Profile.ProgressKey, result))
}

func (f *MQTTFormatter) OnFinish(summary domain.Summary) {
	f.publish(f.SummaryTopic(), NewSummaryRecord(summary))
}

func (f *MQTTFormatter) publish(topic string, v any) {
	payload, err := json.Marshal(v)
	if err == nil {
		err = f.pub.Publish(topic, payload)
	}
	// One warning is enough; the soak test keeps running without the broker.
	if err != nil && !f.warned {
		f.warned = true
		fmt.Fprintf(f.errOut, "mqtt publish to %s failed: %v\n", topic, err)
	}
}
