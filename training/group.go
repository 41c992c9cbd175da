package training

// Group is a fixed set of agent ledgers sharing a group reward.
// Ending or interrupting the group episode closes every member's episode too.
type Group struct {
	Name string

	members  []*Ledger
	reward   float64
	episodes []EpisodeRecord
}

// NewGroup creates an empty group.
func NewGroup(name string) *Group {
	return &Group{Name: name}
}

// RegisterAgent adds a member. Registering the same ledger twice is a no-op.
func (g *Group) RegisterAgent(l *Ledger) {
	for _, m := range g.members {
		if m == l {
			return
		}
	}
	g.members = append(g.members, l)
}

// Members returns the registered ledgers.
func (g *Group) Members() []*Ledger {
	return g.members
}

// AddGroupReward increments the shared reward of every member.
func (g *Group) AddGroupReward(r float64) {
	g.reward += r
}

// GroupReward returns the shared reward accumulated in the current episode.
func (g *Group) GroupReward() float64 {
	return g.reward
}

// EndGroupEpisode closes the episode for the group and all members.
func (g *Group) EndGroupEpisode() {
	g.flush(false)
	for _, m := range g.members {
		m.EndEpisode()
	}
}

// GroupEpisodeInterrupted closes the episode as truncated for the group and all members.
func (g *Group) GroupEpisodeInterrupted() {
	g.flush(true)
	for _, m := range g.members {
		m.EpisodeInterrupted()
	}
}

func (g *Group) flush(truncated bool) {
	g.episodes = append(g.episodes, EpisodeRecord{Return: g.reward, Truncated: truncated})
	g.reward = 0
}

// Episodes returns the group's closed episodes in order.
func (g *Group) Episodes() []EpisodeRecord {
	return g.episodes
}

// LastEpisode returns the most recently closed group episode.
func (g *Group) LastEpisode() (EpisodeRecord, bool) {
	if len(g.episodes) == 0 {
		return EpisodeRecord{}, false
	}
	return g.episodes[len(g.episodes)-1], true
}
