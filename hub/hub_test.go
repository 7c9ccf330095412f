package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPublishSampleReachesSubscriber(t *testing.T) {
	h := New()
	defer h.Close()

	ch := JoinSampleGroup(h.Measurement)
	h.PublishSample(Sample{Current: 64, Target: 66, Duty: 50})

	select {
	case s := <-ch:
		assert.Equal(t, 64.0, s.Current)
		assert.Equal(t, 66.0, s.Target)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for sample broadcast")
	}
}

func TestPublishLogReachesSubscriber(t *testing.T) {
	h := New()
	defer h.Close()

	ch := JoinLogGroup(h.LogEvents)
	h.PublishLog("info", "OverTime Start")

	select {
	case l := <-ch:
		assert.Equal(t, "info", l.Level)
		assert.Equal(t, "OverTime Start", l.Message)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for log broadcast")
	}
}
