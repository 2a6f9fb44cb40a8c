package relay

import "sort"

// MembershipView reads room membership from the transport. It owns no state.
type MembershipView struct {
	groups Groups
}

// NewMembershipView creates a view over groups
func NewMembershipView(groups Groups) *MembershipView {
	return &MembershipView{groups: groups}
}

// MembersOf returns the connections currently in room, sorted so repeated
// calls over the same membership agree. The slice is a snapshot; re-query
// after any join or leave.
func (v *MembershipView) MembersOf(room RoomID) []ConnID {
	members := v.groups.Members(room)
	if len(members) == 0 {
		return []ConnID{}
	}

	out := make([]ConnID, len(members))
	copy(out, members)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Players renders the membership of room as players-update entries
func (v *MembershipView) Players(room RoomID) []Player {
	members := v.MembersOf(room)
	players := make([]Player, 0, len(members))
	for _, id := range members {
		players = append(players, Player{ID: id})
	}
	return players
}
