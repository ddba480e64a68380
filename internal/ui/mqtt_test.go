package ui

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msaeedsaeedi/serialsoak/internal/domain"
)

type message struct {
	topic   string
	payload string
}

type fakePublisher struct {
	sent []message
	err  error
}

func (p *fakePublisher) Publish(topic string, payload []byte) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, message{topic: topic, payload: string(payload)})
	return nil
}

func TestMQTTFormatterPublishes(t *testing.T) {
	cfg := &domain.RunConfig{InstanceID: "qswipe_bench", Profile: domain.QSwipe}
	pub := &fakePublisher{}
	f := NewMQTTFormatter(cfg, pub)

	assert.Equal(t, "serialsoak/qswipe_bench/progress", f.ProgressTopic())
	assert.Equal(t, "serialsoak/qswipe_bench/summary", f.SummaryTopic())

	f.OnStart(1)
	f.OnComplete(result(1, 3, true, 0, 0))
	f.OnFinish(domain.Summary{InstanceID: "qswipe_bench", Commands: 8, CyclesCompleted: 1})

	require.Len(t, pub.sent, 2)
	assert.Equal(t, f.ProgressTopic(), pub.sent[0].topic)
	assert.JSONEq(t,
		`{"cycle":1,"total_cycles":3,"errors":0,"timeouts":0,"cycle_completed":true}`,
		pub.sent[0].payload)
	assert.Equal(t, f.SummaryTopic(), pub.sent[1].topic)
	assert.JSONEq(t,
		`{"instance_id":"qswipe_bench","total_commands":8,"errors":0,"timeouts":0,"cycles_completed":1,"stopped":false}`,
		pub.sent[1].payload)

	stdout, stderr := f.GetOutputWriters()
	assert.Nil(t, stdout)
	assert.Nil(t, stderr)
}

func TestMQTTFormatterWarnsOnce(t *testing.T) {
	cfg := &domain.RunConfig{InstanceID: "qba_bench", Profile: domain.QBA}
	f := NewMQTTFormatter(cfg, &fakePublisher{err: errors.New("not connected")})
	var errOut bytes.Buffer
	f.errOut = &errOut

	f.OnComplete(result(1, 2, true, 0, 0))
	f.OnComplete(result(2, 2, true, 0, 0))
	f.OnFinish(domain.Summary{})

	assert.Equal(t,
		"mqtt publish to serialsoak/qba_bench/progress failed: not connected\n",
		errOut.String())
}
