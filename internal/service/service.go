// Package service implements the gateway operations on top of the custody
// controller, the base-layer store and the venue.
package service

import (
	"time"

	"github.com/xiaot623/gogo/sessiongate/internal/custody"
	"github.com/xiaot623/gogo/sessiongate/internal/domain"
	"github.com/xiaot623/gogo/sessiongate/internal/metrics"
	"github.com/xiaot623/gogo/sessiongate/internal/policy"
	"github.com/xiaot623/gogo/sessiongate/internal/repository"
	"github.com/xiaot623/gogo/sessiongate/internal/venue"
)

// EventSink receives every event after it is stored.
type EventSink interface {
	Publish(event domain.Event)
}

type Service struct {
	store        store.Store
	custody      *custody.Controller
	venue        venue.Venue
	policyEngine *policy.Engine
	sink         EventSink
	metrics      *metrics.Metrics
	now          func() time.Time
	locks        *keyedMutex
}

// New creates the service. sink may be nil. now defaults to time.Now.
func New(store store.Store, controller *custody.Controller, v venue.Venue, policyEngine *policy.Engine, sink EventSink, m *metrics.Metrics, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	if m == nil {
		m = metrics.New()
	}
	return &Service{
		store:        store,
		custody:      controller,
		venue:        v,
		policyEngine: policyEngine,
		sink:         sink,
		metrics:      m,
		now:          now,
		locks:        newKeyedMutex(),
	}
}

func (s *Service) unixNow() int64 {
	return s.now().Unix()
}
