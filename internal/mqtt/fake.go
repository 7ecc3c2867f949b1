package mqtt

import "sync"

// FakePublisher records published snapshots for test assertions.
type FakePublisher struct {
	mu sync.Mutex

	// Statuses contains every snapshot that was published.
	Statuses []Status

	// Payloads contains the JSON payloads that were published.
	Payloads [][]byte

	// PublishError, if set, will be returned by PublishStatus.
	PublishError error

	// Closed tracks if Close was called.
	Closed bool
}

func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

func (f *FakePublisher) PublishStatus(status Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatStatusPayload(status)
	if err != nil {
		return err
	}
	f.Statuses = append(f.Statuses, status)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Published returns a copy of the recorded snapshots.
func (f *FakePublisher) Published() []Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Status(nil), f.Statuses...)
}
