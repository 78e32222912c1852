package client

import "sync"

// State is the local, newest-first list of notifications. All merges are
// idempotent by id.
type State struct {
	mu    sync.RWMutex
	items []*View
	byID  map[string]*View

	subMu   sync.Mutex
	subs    map[int]func()
	nextSub int
}

// NewState returns an empty State.
func NewState() *State {
	return &State{
		byID: make(map[string]*View),
		subs: make(map[int]func()),
	}
}

// Apply prepends v unless a notification with the same id is already
// present. A known notification only picks up a read flag, so a redelivered
// push never marks it unread again. It reports whether the state changed.
func (s *State) Apply(v View) bool {
	s.mu.Lock()
	changed := false
	if existing, ok := s.byID[v.ID]; ok {
		if v.IsRead && !existing.IsRead {
			existing.IsRead = true
			changed = true
		}
	} else {
		item := v
		s.items = append([]*View{&item}, s.items...)
		s.byID[v.ID] = &item
		changed = true
	}
	s.mu.Unlock()

	if changed {
		s.notify()
	}
	return changed
}

// MarkRead flags one notification as read. Unknown ids are ignored.
func (s *State) MarkRead(id string) bool {
	s.mu.Lock()
	changed := false
	if v, ok := s.byID[id]; ok && !v.IsRead {
		v.IsRead = true
		changed = true
	}
	s.mu.Unlock()

	if changed {
		s.notify()
	}
	return changed
}

// MarkAllRead flags every notification as read and returns how many changed.
func (s *State) MarkAllRead() int {
	s.mu.Lock()
	n := 0
	for _, v := range s.items {
		if !v.IsRead {
			v.IsRead = true
			n++
		}
	}
	s.mu.Unlock()

	if n > 0 {
		s.notify()
	}
	return n
}

// Replace reconciles the state with a full fetch. views must be newest
// first; duplicates keep their first occurrence.
func (s *State) Replace(views []View) {
	s.mu.Lock()
	s.items = make([]*View, 0, len(views))
	s.byID = make(map[string]*View, len(views))
	for _, v := range views {
		if _, ok := s.byID[v.ID]; ok {
			continue
		}
		item := v
		s.items = append(s.items, &item)
		s.byID[v.ID] = &item
	}
	s.mu.Unlock()

	s.notify()
}

// Items returns a copy of the list, newest first.
func (s *State) Items() []View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]View, len(s.items))
	for i, v := range s.items {
		out[i] = *v
	}
	return out
}

// Get returns the notification with the given id.
func (s *State) Get(id string) (View, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.byID[id]
	if !ok {
		return View{}, false
	}
	return *v, true
}

// UnreadCount returns the number of unread notifications.
func (s *State) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, v := range s.items {
		if !v.IsRead {
			n++
		}
	}
	return n
}

// Subscribe registers fn to run after every change. The returned func
// removes it.
func (s *State) Subscribe(fn func()) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *State) clearSubscribers() {
	s.subMu.Lock()
	s.subs = make(map[int]func())
	s.subMu.Unlock()
}

func (s *State) notify() {
	s.subMu.Lock()
	fns := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
