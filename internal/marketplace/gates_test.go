package marketplace

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sudo-init-do/bidhub/internal/access"
	"github.com/sudo-init-do/bidhub/internal/user"
)

func TestProjectGatesRequireRoleAndOwnership(t *testing.T) {
	p := &Project{ID: "p1", BuyerID: "b1"}
	owner := access.Caller{ID: "b1", Role: user.RoleBuyer}
	other := access.Caller{ID: "b2", Role: user.RoleBuyer}
	// A seller whose id happens to match still fails on role.
	seller := access.Caller{ID: "b1", Role: user.RoleSeller}

	cases := []struct {
		name   string
		gate   func(access.Caller, *Project) access.Decision
		caller access.Caller
		reason string
	}{
		{"select owner", canSelectBidFor, owner, ""},
		{"select other buyer", canSelectBidFor, other, "You do not have permission to select a bid for this project"},
		{"select seller", canSelectBidFor, seller, "Only buyers can select bids"},
		{"complete owner", canCompleteProject, owner, ""},
		{"complete other buyer", canCompleteProject, other, "You do not have permission to complete this project"},
		{"complete seller", canCompleteProject, seller, "Only buyers can mark projects as complete"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := tc.gate(tc.caller, p)
			assert.Equal(t, tc.reason == "", d.Allowed)
			assert.Equal(t, tc.reason, d.Reason)
		})
	}
}
