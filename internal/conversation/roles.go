package conversation

// AssignRoles maps each distinct speaker identifier in speakerIDs to a
// [Role] based purely on first-occurrence order: the identifier that appears
// first maps to [RoleAgent], every other distinct identifier maps to
// [RoleCustomer]. In a two-party support call the party who opens the
// conversation is, by convention, the agent.
//
// Duplicate occurrences are expected and ignored after the first; re-ordering
// later duplicates never changes the result. An empty input yields an empty
// map. The function is pure and never inspects textual content.
func AssignRoles(speakerIDs []string) map[string]Role {
	roles := make(map[string]Role, 2)
	for _, id := range speakerIDs {
		if _, seen := roles[id]; seen {
			continue
		}
		if len(roles) == 0 {
			roles[id] = RoleAgent
		} else {
			roles[id] = RoleCustomer
		}
	}
	return roles
}
