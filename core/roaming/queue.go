package roaming

import (
	"sort"

	"github.com/kilianp07/roamsync/core/model"
)

// Container names used in stats, metrics and events.
const (
	ContainerAdd           = "add"
	ContainerUpdate        = "update"
	ContainerRemove        = "remove"
	ContainerFastStatus    = "fast_status"
	ContainerDelayedStatus = "delayed_status"
	ContainerCDR           = "cdr"
)

type evseEntry struct {
	evse     *model.EVSE
	attempts int
}

type statusEntry struct {
	update   model.EVSEStatusUpdate
	attempts int
}

type cdrEntry struct {
	cdr      model.ChargeDetailRecord
	attempts int
	spooled  bool
}

// evseSet holds at most one entry per EVSE identity.
type evseSet map[model.EVSEID]*evseEntry

// put stores evse, keeping the attempt count of an existing entry.
func (s evseSet) put(evse *model.EVSE) {
	if e, ok := s[evse.ID]; ok {
		e.evse = evse
		return
	}
	s[evse.ID] = &evseEntry{evse: evse}
}

func (s evseSet) has(id model.EVSEID) bool {
	_, ok := s[id]
	return ok
}

func (s evseSet) sorted() []*evseEntry {
	out := make([]*evseEntry, 0, len(s))
	for _, e := range s {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].evse.ID < out[j].evse.ID })
	return out
}

// queueStore holds the pending mutations of one provider. All methods must be
// called with the provider lock held.
type queueStore struct {
	adds    evseSet
	updates evseSet
	removes evseSet
	fast    []statusEntry
	delayed []statusEntry
	cdrs    []cdrEntry

	// inflight holds the EVSEs of an addition batch being pushed. Their status
	// changes are held back like those of queued additions.
	inflight map[model.EVSEID]struct{}

	serviceRuns uint64
	statusRuns  uint64
}

func newQueueStore() *queueStore {
	return &queueStore{
		adds:     evseSet{},
		updates:  evseSet{},
		removes:  evseSet{},
		inflight: map[model.EVSEID]struct{}{},
	}
}

// unregistered reports whether the partner may not know the EVSE yet.
func (q *queueStore) unregistered(id model.EVSEID) bool {
	if q.adds.has(id) {
		return true
	}
	_, ok := q.inflight[id]
	return ok
}

func (q *queueStore) addEVSE(evse *model.EVSE) {
	q.adds.put(evse)
	delete(q.removes, evse.ID)
}

// updateEVSE records a data change. A pending addition takes the new version,
// since updates of EVSEs being added are not pushed separately.
func (q *queueStore) updateEVSE(evse *model.EVSE) {
	q.updates.put(evse)
	if e, ok := q.adds[evse.ID]; ok {
		e.evse = evse
	}
}

// requeueAdds returns failed additions to the add set. An addition takes the
// version of a data update recorded while it was pushed.
func (q *queueStore) requeueAdds(entries []*evseEntry) int {
	for _, e := range entries {
		if u, ok := q.updates[e.evse.ID]; ok {
			e.evse = u.evse
		}
	}
	return q.requeueEVSEs(q.adds, entries)
}

// removeEVSE cancels everything pending for an EVSE that was never pushed, or
// marks an already pushed EVSE for removal. It reports whether the removal was
// recorded in the remove set.
func (q *queueStore) removeEVSE(evse *model.EVSE) bool {
	delete(q.updates, evse.ID)
	if q.adds.has(evse.ID) {
		delete(q.adds, evse.ID)
		q.fast = dropStatuses(q.fast, evse.ID)
		q.delayed = dropStatuses(q.delayed, evse.ID)
		return false
	}
	q.removes.put(evse)
	return true
}

func dropStatuses(list []statusEntry, id model.EVSEID) []statusEntry {
	out := list[:0]
	for _, e := range list {
		if e.update.EVSEID() != id {
			out = append(out, e)
		}
	}
	for i := len(out); i < len(list); i++ {
		list[i] = statusEntry{}
	}
	return out
}

func (q *queueStore) appendStatus(u model.EVSEStatusUpdate) {
	q.fast = append(q.fast, statusEntry{update: u})
}

func (q *queueStore) appendCDR(cdr model.ChargeDetailRecord, spooled bool) {
	q.cdrs = append(q.cdrs, cdrEntry{cdr: cdr, spooled: spooled})
}

// serviceEmpty reports whether the service flush has nothing to push.
func (q *queueStore) serviceEmpty() bool {
	return len(q.adds) == 0 && len(q.updates) == 0 && len(q.delayed) == 0 &&
		len(q.removes) == 0 && len(q.cdrs) == 0
}

type serviceSnapshot struct {
	run     uint64
	adds    []*evseEntry
	updates []*evseEntry
	removes []*evseEntry
	delayed []statusEntry
	cdrs    []cdrEntry
}

// takeService snapshots and clears the service containers.
func (q *queueStore) takeService() serviceSnapshot {
	snap := serviceSnapshot{
		adds:    q.adds.sorted(),
		updates: q.updates.sorted(),
		removes: q.removes.sorted(),
		delayed: append([]statusEntry(nil), q.delayed...),
		cdrs:    append([]cdrEntry(nil), q.cdrs...),
	}
	q.serviceRuns++
	snap.run = q.serviceRuns
	for _, e := range snap.adds {
		q.inflight[e.evse.ID] = struct{}{}
	}
	q.adds = evseSet{}
	q.updates = evseSet{}
	q.removes = evseSet{}
	q.delayed = nil
	q.cdrs = nil
	return snap
}

type statusSnapshot struct {
	run      uint64
	entries  []statusEntry
	promoted int
}

// takeStatus moves status changes of EVSEs whose data push is queued or running
// to the delayed list and snapshots the rest.
func (q *queueStore) takeStatus() statusSnapshot {
	var snap statusSnapshot
	for _, e := range q.fast {
		if q.unregistered(e.update.EVSEID()) {
			q.delayed = append(q.delayed, e)
			snap.promoted++
			continue
		}
		snap.entries = append(snap.entries, e)
	}
	q.statusRuns++
	snap.run = q.statusRuns
	q.fast = nil
	return snap
}

// requeueEVSEs returns failed entries to set. EVSEs that were enqueued again in
// the meantime keep their newer entry; EVSEs removed in the meantime are skipped.
func (q *queueStore) requeueEVSEs(set evseSet, entries []*evseEntry) int {
	n := 0
	for _, e := range entries {
		if set.has(e.evse.ID) || q.removes.has(e.evse.ID) {
			continue
		}
		set[e.evse.ID] = e
		n++
	}
	return n
}

// requeueStatuses puts failed entries in front of list, preserving their order.
func requeueStatuses(list, entries []statusEntry) []statusEntry {
	if len(entries) == 0 {
		return list
	}
	out := make([]statusEntry, 0, len(entries)+len(list))
	out = append(out, entries...)
	return append(out, list...)
}

func (q *queueStore) requeueCDRs(entries []cdrEntry) {
	if len(entries) == 0 {
		return
	}
	out := make([]cdrEntry, 0, len(entries)+len(q.cdrs))
	out = append(out, entries...)
	q.cdrs = append(out, q.cdrs...)
}

// QueueStats is a point-in-time view of the containers of a provider.
type QueueStats struct {
	Provider      string `json:"provider"`
	Adds          int    `json:"adds"`
	Updates       int    `json:"updates"`
	Removes       int    `json:"removes"`
	FastStatus    int    `json:"fast_status"`
	DelayedStatus int    `json:"delayed_status"`
	CDRs          int    `json:"cdrs"`
	ServiceRuns   uint64 `json:"service_runs"`
	StatusRuns    uint64 `json:"status_runs"`
}

// Total returns the number of pending entries.
func (s QueueStats) Total() int {
	return s.Adds + s.Updates + s.Removes + s.FastStatus + s.DelayedStatus + s.CDRs
}

func (q *queueStore) stats() QueueStats {
	return QueueStats{
		Adds:          len(q.adds),
		Updates:       len(q.updates),
		Removes:       len(q.removes),
		FastStatus:    len(q.fast),
		DelayedStatus: len(q.delayed),
		CDRs:          len(q.cdrs),
		ServiceRuns:   q.serviceRuns,
		StatusRuns:    q.statusRuns,
	}
}

// Pending lists the identities waiting in each container.
type Pending struct {
	Adds          []model.EVSEID `json:"adds"`
	Updates       []model.EVSEID `json:"updates"`
	Removes       []model.EVSEID `json:"removes"`
	FastStatus    []model.EVSEID `json:"fast_status"`
	DelayedStatus []model.EVSEID `json:"delayed_status"`
	CDRs          []string       `json:"cdrs"`
}

func (q *queueStore) pending() Pending {
	ids := func(s evseSet) []model.EVSEID {
		out := make([]model.EVSEID, 0, len(s))
		for _, e := range s.sorted() {
			out = append(out, e.evse.ID)
		}
		return out
	}
	statusIDs := func(list []statusEntry) []model.EVSEID {
		out := make([]model.EVSEID, 0, len(list))
		for _, e := range list {
			out = append(out, e.update.EVSEID())
		}
		return out
	}
	p := Pending{
		Adds:          ids(q.adds),
		Updates:       ids(q.updates),
		Removes:       ids(q.removes),
		FastStatus:    statusIDs(q.fast),
		DelayedStatus: statusIDs(q.delayed),
		CDRs:          make([]string, 0, len(q.cdrs)),
	}
	for _, c := range q.cdrs {
		p.CDRs = append(p.CDRs, c.cdr.SessionID)
	}
	return p
}
