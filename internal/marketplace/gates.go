package marketplace

import (
	"github.com/sudo-init-do/bidhub/internal/access"
	"github.com/sudo-init-do/bidhub/internal/user"
)

const msgNoProjectAccess = "You do not have permission to access this project"

func canCreateProject(c access.Caller) access.Decision {
	return access.HasRole(c, user.RoleBuyer).Or("Only buyers can create projects")
}

// canViewProject lets sellers see any project and buyers only their own.
func canViewProject(c access.Caller, p *Project) access.Decision {
	if c.Role == user.RoleBuyer {
		return access.Owns(c, p.BuyerID).Or(msgNoProjectAccess)
	}
	return access.Allow()
}

func canUpdateProject(c access.Caller, p *Project) access.Decision {
	return access.Owns(c, p.BuyerID).Or("You do not have permission to update this project")
}

func canDeleteProject(c access.Caller, p *Project) access.Decision {
	return access.Owns(c, p.BuyerID).Or("You do not have permission to delete this project")
}

func canBid(c access.Caller) access.Decision {
	return access.HasRole(c, user.RoleSeller).Or("Only sellers can create bids")
}

func canSelectBids(c access.Caller) access.Decision {
	return access.HasRole(c, user.RoleBuyer).Or("Only buyers can select bids")
}

// canSelectBidFor is the full check once the project is loaded: the
// caller must still be a buyer and must own the project.
func canSelectBidFor(c access.Caller, p *Project) access.Decision {
	return access.All(
		canSelectBids(c),
		access.Owns(c, p.BuyerID).Or("You do not have permission to select a bid for this project"),
	)
}

func canSubmitDeliverables(c access.Caller) access.Decision {
	return access.HasRole(c, user.RoleSeller).Or("Only sellers can submit deliverables")
}

// isSelectedSeller requires the caller to be the seller of the winning bid.
func isSelectedSeller(c access.Caller, selectedSellerID string) access.Decision {
	return access.Owns(c, selectedSellerID).Or("You are not the selected seller for this project")
}

// canViewDeliverables admits the owning buyer and the selected seller.
func canViewDeliverables(c access.Caller, p *Project, selectedSellerID string) access.Decision {
	switch c.Role {
	case user.RoleBuyer:
		return access.Owns(c, p.BuyerID).Or(msgNoProjectAccess)
	case user.RoleSeller:
		return access.Owns(c, selectedSellerID).Or(msgNoProjectAccess)
	}
	return access.Deny(msgNoProjectAccess)
}

func canComplete(c access.Caller) access.Decision {
	return access.HasRole(c, user.RoleBuyer).Or("Only buyers can mark projects as complete")
}

func canCompleteProject(c access.Caller, p *Project) access.Decision {
	return access.All(
		canComplete(c),
		access.Owns(c, p.BuyerID).Or("You do not have permission to complete this project"),
	)
}

func canReview(c access.Caller) access.Decision {
	return access.HasRole(c, user.RoleBuyer).Or("Only buyers can create reviews")
}

func canReviewProject(c access.Caller, p *Project) access.Decision {
	return access.Owns(c, p.BuyerID).Or("You do not have permission to review this project")
}
