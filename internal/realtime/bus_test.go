package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ioms/backend/internal/model"
)

func TestBus_DeliversToMatchingSessions(t *testing.T) {
	bus := NewBus(4, nil)
	company, other := uuid.New(), uuid.New()
	alice, bob := uuid.New(), uuid.New()

	sa := bus.Subscribe(company, alice)
	sb := bus.Subscribe(company, bob)
	so := bus.Subscribe(other, uuid.New())
	defer sa.Close()
	defer sb.Close()
	defer so.Close()

	n := bus.Deliver(model.BusEvent{Kind: "notification", CompanyID: company, UserIDs: []uuid.UUID{alice}})
	assert.Equal(t, 1, n)

	select {
	case ev := <-sa.Events():
		assert.Equal(t, "notification", ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("alice did not receive the event")
	}
	assert.Empty(t, sb.Events())

	n = bus.Deliver(model.BusEvent{Kind: "outage", CompanyID: company})
	assert.Equal(t, 2, n)
	assert.Len(t, so.Events(), 0)
}

func TestBus_SessionLifecycle(t *testing.T) {
	bus := NewBus(1, nil)
	company, user := uuid.New(), uuid.New()

	s1 := bus.Subscribe(company, user)
	s2 := bus.Subscribe(company, user)
	require.Equal(t, 2, bus.Len())

	s1.Close()
	s1.Close()
	assert.Equal(t, 1, bus.Len())
	_, open := <-s1.Events()
	assert.False(t, open)

	assert.Equal(t, 1, bus.CloseUser(user))
	assert.Zero(t, bus.Len())
	_, open = <-s2.Events()
	assert.False(t, open)
}

func TestBus_FullQueueDropsInsteadOfBlocking(t *testing.T) {
	bus := NewBus(1, nil)
	company := uuid.New()
	s := bus.Subscribe(company, uuid.New())
	defer s.Close()

	assert.Equal(t, 1, bus.Deliver(model.BusEvent{CompanyID: company}))
	assert.Equal(t, 0, bus.Deliver(model.BusEvent{CompanyID: company}))
}

func TestLocalBroadcaster(t *testing.T) {
	bus := NewBus(2, nil)
	company := uuid.New()
	s := bus.Subscribe(company, uuid.New())
	defer s.Close()

	require.NoError(t, Local{Bus: bus}.Broadcast(context.Background(), model.BusEvent{CompanyID: company}))
	assert.Len(t, s.Events(), 1)
}

func TestRelay_IgnoresOwnMessages(t *testing.T) {
	bus := NewBus(2, nil)
	company := uuid.New()
	s := bus.Subscribe(company, uuid.New())
	defer s.Close()

	r := NewRelay(bus, nil, "", nil)
	r.handle(`{"origin":"` + r.origin + `","event":{"kind":"x","company_id":"` + company.String() + `"}}`)
	assert.Len(t, s.Events(), 0)

	r.handle(`{"origin":"elsewhere","event":{"kind":"x","company_id":"` + company.String() + `"}}`)
	assert.Len(t, s.Events(), 1)

	r.handle(`not json`)
	assert.Len(t, s.Events(), 1)
}
