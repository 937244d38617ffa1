package core

// Normalizer applies the inclusion rules to mapped entries, fills elided
// channel and theme values, and maintains the per-channel rollup.
//
// The list writes channel and theme only when they change, so the inheritance
// memory follows every candidate in document order, including candidates that
// are dropped afterwards. Rollup boundaries only move for forwarded entries.
type Normalizer struct {
	cutoff int64 // 0 disables the age filter

	lastChannel string
	lastTheme   string

	active   *ChannelInfo
	channels []ChannelInfo
	onFlush  func(ChannelInfo)
}

// NewNormalizer creates a normalizer. maxAgeDays > 0 drops entries whose
// timestamp is older than now minus that many days.
func NewNormalizer(maxAgeDays int, now int64) *Normalizer {
	n := &Normalizer{}
	if maxAgeDays > 0 {
		n.cutoff = now - int64(maxAgeDays)*86400
	}
	return n
}

// OnFlush registers fn to be called each time a channel rollup is finalized.
func (n *Normalizer) OnFlush(fn func(ChannelInfo)) {
	n.onFlush = fn
}

// Normalize processes one entry candidate. It returns true when the entry
// is forwarded; otherwise the stats counter for the drop reason is bumped.
func (n *Normalizer) Normalize(m *Mapped, stats *Stats) bool {
	e := &m.Entry
	n.inherit(e)

	if m.Kind == MappedNoLocation || !e.HasLocation() {
		stats.SkippedNoLocation++
		return false
	}
	if n.cutoff != 0 && e.DateUnix != 0 && e.DateUnix < n.cutoff {
		stats.FilteredByAge++
		return false
	}

	if n.active == nil || n.active.Channel != e.Channel {
		n.flush()
		n.active = newChannelInfo(e.Channel)
	}
	n.active.Count++
	if e.DateUnix > n.active.Latest {
		n.active.Latest = e.DateUnix
	}
	if e.DateUnix != 0 && e.DateUnix < n.active.Oldest {
		n.active.Oldest = e.DateUnix
	}

	stats.Entries++
	return true
}

func (n *Normalizer) inherit(e *Entry) {
	if e.Channel == "" {
		e.Channel = n.lastChannel
	} else {
		n.lastChannel = e.Channel
	}
	if e.Theme == "" {
		e.Theme = n.lastTheme
	} else {
		n.lastTheme = e.Theme
	}
}

func (n *Normalizer) flush() {
	if n.active == nil {
		return
	}
	info := *n.active
	n.active = nil
	n.channels = append(n.channels, info)
	if n.onFlush != nil {
		n.onFlush(info)
	}
}

// Finish finalizes the active rollup and returns all rollups in the order
// they were finalized.
func (n *Normalizer) Finish() []ChannelInfo {
	n.flush()
	return n.channels
}
