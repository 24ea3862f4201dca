package station

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ConnectorStatus is the version-neutral connector state. The handlers map
// these onto the 1.6 ChargePointStatus and 2.0.1 ConnectorStatus enums.
type ConnectorStatus string

const (
	StatusAvailable     ConnectorStatus = "Available"
	StatusPreparing     ConnectorStatus = "Preparing"
	StatusCharging      ConnectorStatus = "Charging"
	StatusSuspendedEV   ConnectorStatus = "SuspendedEV"
	StatusSuspendedEVSE ConnectorStatus = "SuspendedEVSE"
	StatusFinishing     ConnectorStatus = "Finishing"
	StatusReserved      ConnectorStatus = "Reserved"
	StatusUnavailable   ConnectorStatus = "Unavailable"
	StatusFaulted       ConnectorStatus = "Faulted"
)

// Availability is the operator-controlled operative state.
type Availability string

const (
	Operative   Availability = "Operative"
	Inoperative Availability = "Inoperative"
)

var (
	ErrTransactionActive   = errors.New("transaction already in progress")
	ErrNoTransaction       = errors.New("no transaction in progress")
	ErrConnectorFaulted    = errors.New("connector is faulted")
	ErrConnectorInoperable = errors.New("connector is inoperative")
)

// ActiveTransaction is the live transaction held by a connector.
type ActiveTransaction struct {
	ID            string // UUID on the 2.0.1 wire
	NumericID     int    // integer id on the 1.6 wire
	IdTag         string
	StartedAt     time.Time
	MeterStartWh  int64
	RemoteStarted bool
	seqNo         int64
}

// NextSeqNo returns the next TransactionEvent sequence number. The meter
// sampler and the station's command handlers advance it concurrently.
func (t *ActiveTransaction) NextSeqNo() int64 {
	return atomic.AddInt64(&t.seqNo, 1) - 1
}

// ChargingProfile is the version-neutral slice of a profile the simulator
// tracks: identity, stack level and a single W limit.
type ChargingProfile struct {
	ID         int
	StackLevel int
	Purpose    string
	LimitW     float64
}

// Connector models one plug: status machine, availability, meter register
// and the charging-profile stack.
type Connector struct {
	mu sync.Mutex

	ID     int // connector id (1.6) / EVSE id (2.0.1); 0 is reserved for the station
	status ConnectorStatus

	availability        Availability
	scheduledInoperable bool // Inoperative deferred until the transaction ends

	tx *ActiveTransaction

	meterWh int64
	powerW  float64

	profiles []ChargingProfile

	faultCode string

	// onStatus fires outside the lock after every distinct transition.
	onStatus func(id int, status ConnectorStatus)
}

// NewConnector builds an Available, Operative connector.
func NewConnector(id int, onStatus func(int, ConnectorStatus)) *Connector {
	return &Connector{
		ID:           id,
		status:       StatusAvailable,
		availability: Operative,
		onStatus:     onStatus,
	}
}

func (c *Connector) setStatusLocked(s ConnectorStatus) (changed bool) {
	if c.status == s {
		return false
	}
	c.status = s
	return true
}

func (c *Connector) notify(changed bool) {
	if changed && c.onStatus != nil {
		c.onStatus(c.ID, c.Status())
	}
}

// Status returns the current state.
func (c *Connector) Status() ConnectorStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Availability returns the operative state.
func (c *Connector) Availability() Availability {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.availability
}

// Transaction returns the live transaction, nil when idle.
func (c *Connector) Transaction() *ActiveTransaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tx
}

// HasTransaction reports whether a transaction is in progress.
func (c *Connector) HasTransaction() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tx != nil
}

// Prepare moves Available to Preparing on plug-in or authorize.
func (c *Connector) Prepare() error {
	c.mu.Lock()
	if c.status == StatusFaulted {
		c.mu.Unlock()
		return ErrConnectorFaulted
	}
	if c.availability == Inoperative {
		c.mu.Unlock()
		return ErrConnectorInoperable
	}
	changed := c.setStatusLocked(StatusPreparing)
	c.mu.Unlock()
	c.notify(changed)
	return nil
}

// Begin installs the accepted transaction and moves to Charging.
func (c *Connector) Begin(tx *ActiveTransaction) error {
	c.mu.Lock()
	if c.tx != nil {
		c.mu.Unlock()
		return ErrTransactionActive
	}
	if c.status == StatusFaulted {
		c.mu.Unlock()
		return ErrConnectorFaulted
	}
	if c.availability == Inoperative {
		c.mu.Unlock()
		return ErrConnectorInoperable
	}
	c.tx = tx
	changed := c.setStatusLocked(StatusCharging)
	c.mu.Unlock()
	c.notify(changed)
	return nil
}

// Suspend moves Charging to SuspendedEV or SuspendedEVSE.
func (c *Connector) Suspend(byEVSE bool) error {
	c.mu.Lock()
	if c.tx == nil {
		c.mu.Unlock()
		return ErrNoTransaction
	}
	target := StatusSuspendedEV
	if byEVSE {
		target = StatusSuspendedEVSE
	}
	changed := c.setStatusLocked(target)
	c.mu.Unlock()
	c.notify(changed)
	return nil
}

// Resume returns a suspended connector to Charging.
func (c *Connector) Resume() error {
	c.mu.Lock()
	if c.tx == nil {
		c.mu.Unlock()
		return ErrNoTransaction
	}
	changed := c.setStatusLocked(StatusCharging)
	c.mu.Unlock()
	c.notify(changed)
	return nil
}

// End clears the transaction, moves to Finishing and applies any scheduled
// Inoperative change. It returns the ended transaction.
func (c *Connector) End() (*ActiveTransaction, error) {
	c.mu.Lock()
	if c.tx == nil {
		c.mu.Unlock()
		return nil, ErrNoTransaction
	}
	tx := c.tx
	c.tx = nil
	c.powerW = 0
	changed := c.setStatusLocked(StatusFinishing)
	c.mu.Unlock()
	c.notify(changed)
	return tx, nil
}

// Settle completes Finishing. It lands on Unavailable when an Inoperative
// change was scheduled during the transaction, Available otherwise.
func (c *Connector) Settle() {
	c.mu.Lock()
	var target ConnectorStatus
	if c.scheduledInoperable {
		c.scheduledInoperable = false
		c.availability = Inoperative
		target = StatusUnavailable
	} else if c.availability == Inoperative {
		target = StatusUnavailable
	} else {
		target = StatusAvailable
	}
	changed := c.setStatusLocked(target)
	c.mu.Unlock()
	c.notify(changed)
}

// AvailabilityOutcome is the result of a ChangeAvailability request.
type AvailabilityOutcome string

const (
	AvailabilityApplied   AvailabilityOutcome = "Accepted"
	AvailabilityScheduled AvailabilityOutcome = "Scheduled"
)

// SetAvailability applies the operative state. Inoperative during a
// transaction is deferred until the transaction ends and reports Scheduled.
func (c *Connector) SetAvailability(a Availability) AvailabilityOutcome {
	c.mu.Lock()
	if a == Inoperative {
		if c.tx != nil {
			c.scheduledInoperable = true
			c.mu.Unlock()
			return AvailabilityScheduled
		}
		c.availability = Inoperative
		changed := c.setStatusLocked(StatusUnavailable)
		c.mu.Unlock()
		c.notify(changed)
		return AvailabilityApplied
	}
	c.scheduledInoperable = false
	c.availability = Operative
	var changed bool
	if c.status == StatusUnavailable {
		changed = c.setStatusLocked(StatusAvailable)
	}
	c.mu.Unlock()
	c.notify(changed)
	return AvailabilityApplied
}

// Fault forces Faulted until ClearFault.
func (c *Connector) Fault(code string) {
	c.mu.Lock()
	c.faultCode = code
	changed := c.setStatusLocked(StatusFaulted)
	c.mu.Unlock()
	c.notify(changed)
}

// ClearFault returns a faulted connector to Available or Unavailable.
func (c *Connector) ClearFault() {
	c.mu.Lock()
	if c.status != StatusFaulted {
		c.mu.Unlock()
		return
	}
	c.faultCode = ""
	target := StatusAvailable
	if c.availability == Inoperative {
		target = StatusUnavailable
	}
	changed := c.setStatusLocked(target)
	c.mu.Unlock()
	c.notify(changed)
}

// FaultCode returns the injected error code, "" when none.
func (c *Connector) FaultCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.faultCode
}

// AddEnergy advances the meter register. The register never decreases.
func (c *Connector) AddEnergy(wh int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if wh > 0 {
		c.meterWh += wh
	}
	return c.meterWh
}

// MeterWh returns the current energy register.
func (c *Connector) MeterWh() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.meterWh
}

// SetPower records the instantaneous power draw.
func (c *Connector) SetPower(w float64) {
	c.mu.Lock()
	c.powerW = w
	c.mu.Unlock()
}

// PowerW returns the instantaneous power draw.
func (c *Connector) PowerW() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.powerW
}

// SetProfile installs or replaces a charging profile by id.
func (c *Connector) SetProfile(p ChargingProfile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.profiles {
		if c.profiles[i].ID == p.ID {
			c.profiles[i] = p
			return
		}
	}
	c.profiles = append(c.profiles, p)
}

// ClearProfiles removes profiles matching the criteria and reports how many
// were removed. Zero-valued criteria match everything.
func (c *Connector) ClearProfiles(id, stackLevel int, purpose string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.profiles[:0]
	removed := 0
	for _, p := range c.profiles {
		match := (id == 0 || p.ID == id) &&
			(stackLevel == 0 || p.StackLevel == stackLevel) &&
			(purpose == "" || p.Purpose == purpose)
		if match {
			removed++
			continue
		}
		kept = append(kept, p)
	}
	c.profiles = kept
	return removed
}

// EffectiveLimit returns the W limit of the highest stack level, with ok
// false when no profile is installed.
func (c *Connector) EffectiveLimit() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.profiles) == 0 {
		return 0, false
	}
	best := c.profiles[0]
	for _, p := range c.profiles[1:] {
		if p.StackLevel > best.StackLevel {
			best = p
		}
	}
	return best.LimitW, true
}

// Profiles returns a copy of the installed profiles.
func (c *Connector) Profiles() []ChargingProfile {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ChargingProfile, len(c.profiles))
	copy(out, c.profiles)
	return out
}
