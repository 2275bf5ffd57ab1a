package playback

const eventBufferSize = 16

// Subscription provides event channels for a subscriber. Events are dropped
// when a channel is full; Done is closed when the service shuts down.
type Subscription struct {
	StateChanged    <-chan StateChange
	Buffering       <-chan BufferingChange
	PositionChanged <-chan PositionChange
	ItemChanged     <-chan ItemChange
	Finished        <-chan FinishedEvent
	Error           <-chan ErrorEvent
	Done            <-chan struct{}

	stateCh     chan StateChange
	bufferingCh chan BufferingChange
	positionCh  chan PositionChange
	itemCh      chan ItemChange
	finishedCh  chan FinishedEvent
	errorCh     chan ErrorEvent
	doneCh      chan struct{}
}

func newSubscription() *Subscription {
	s := &Subscription{
		stateCh:     make(chan StateChange, eventBufferSize),
		bufferingCh: make(chan BufferingChange, eventBufferSize),
		positionCh:  make(chan PositionChange, eventBufferSize),
		itemCh:      make(chan ItemChange, eventBufferSize),
		finishedCh:  make(chan FinishedEvent, eventBufferSize),
		errorCh:     make(chan ErrorEvent, eventBufferSize),
		doneCh:      make(chan struct{}),
	}
	s.StateChanged = s.stateCh
	s.Buffering = s.bufferingCh
	s.PositionChanged = s.positionCh
	s.ItemChanged = s.itemCh
	s.Finished = s.finishedCh
	s.Error = s.errorCh
	s.Done = s.doneCh
	return s
}

func (s *Subscription) close() {
	close(s.doneCh)
}

// send delivers e without blocking.
func send[E any](ch chan E, e E) {
	select {
	case ch <- e:
	default:
		// Drop if buffer full
	}
}
