package coprocessor_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"okinoko-cipher_duel/coprocessor"
	"okinoko-cipher_duel/sdk"
)

type memQueue struct {
	mu        sync.Mutex
	pending   []coprocessor.Request
	delivered map[uint64]string
}

func (q *memQueue) add(id uint64, h sdk.Handle) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, coprocessor.Request{ID: id, Handle: h})
}

func (q *memQueue) PendingDisclosures(_ context.Context, limit int) ([]coprocessor.Request, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) < limit {
		limit = len(q.pending)
	}
	return append([]coprocessor.Request(nil), q.pending[:limit]...), nil
}

func (q *memQueue) MarkDisclosureDelivered(_ context.Context, id uint64, deliveryErr string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.delivered == nil {
		q.delivered = map[uint64]string{}
	}
	q.delivered[id] = deliveryErr
	for i, r := range q.pending {
		if r.ID == id {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			break
		}
	}
	return nil
}

func TestOracleDeliversOnce(t *testing.T) {
	e := newEngine(t, coprocessor.NewMemoryStore(), 0)
	public, err := e.Trivial(sdk.KindAddress, sdk.AddressValue("hive:bob"))
	require.NoError(t, err)
	require.NoError(t, e.MakePubliclyDecryptable(public))
	private, err := e.Trivial(sdk.KindAddress, sdk.AddressValue("hive:bob"))
	require.NoError(t, err)

	q := &memQueue{}
	q.add(1, public)
	q.add(2, private)
	q.add(3, public)

	var got []coprocessor.Answer
	deliver := func(_ context.Context, a coprocessor.Answer) error {
		got = append(got, a)
		if a.RequestID == 3 {
			return errors.New("room finished")
		}
		return nil
	}
	o := coprocessor.NewOracle(e, q, deliver, coprocessor.OracleConfig{BatchSize: 2}, zerolog.Nop())

	n, err := o.Drain(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(1), got[0].RequestID)
	assert.Equal(t, []byte("hive:bob"), got[0].Cleartext)
	require.NoError(t, e.VerifyDisclosure(public, got[0].Cleartext, got[0].Proof))

	assert.Equal(t, "", q.delivered[1])
	assert.Contains(t, q.delivered[2], "not publicly disclosable")
	assert.Equal(t, "room finished", q.delivered[3])

	n, err = o.Drain(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestOracleRunStopsOnCancel(t *testing.T) {
	e := newEngine(t, coprocessor.NewMemoryStore(), 0)
	h, err := e.Trivial(sdk.KindAddress, sdk.AddressValue(""))
	require.NoError(t, err)
	require.NoError(t, e.MakePubliclyDecryptable(h))

	q := &memQueue{}
	delivered := make(chan uint64, 1)
	o := coprocessor.NewOracle(e, q, func(_ context.Context, a coprocessor.Answer) error {
		delivered <- a.RequestID
		return nil
	}, coprocessor.OracleConfig{PollInterval: time.Hour}, zerolog.Nop())

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	q.add(9, h)
	o.Notify()
	select {
	case id := <-delivered:
		assert.Equal(t, uint64(9), id)
	case <-time.After(5 * time.Second):
		t.Fatal("request not delivered after Notify")
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("oracle did not stop")
	}
}
