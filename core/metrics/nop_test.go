package metrics

import "testing"

func TestNopSinkImplementsRecorders(t *testing.T) {
	var s MetricsSink = NopSink{}
	if _, ok := s.(PushRecorder); !ok {
		t.Fatalf("NopSink should record pushes")
	}
	if _, ok := s.(CDRRecorder); !ok {
		t.Fatalf("NopSink should record cdrs")
	}
	if _, ok := s.(DropRecorder); !ok {
		t.Fatalf("NopSink should record drops")
	}
	if _, ok := s.(ExceptionRecorder); !ok {
		t.Fatalf("NopSink should record exceptions")
	}
}
