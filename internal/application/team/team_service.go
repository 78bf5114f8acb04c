package team

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mvstudio/backend/internal/domain/billing"
	"github.com/mvstudio/backend/internal/domain/credit"
	"github.com/mvstudio/backend/internal/domain/shared"
	"github.com/mvstudio/backend/internal/domain/team"
	"go.uber.org/zap"
)

const recentAllocationLimit = 50

// TeamService manages teams and the allocation ledger of their credit pool
type TeamService struct {
	scope       TransactionScope
	teams       team.TeamRepository
	members     team.MemberRepository
	allocations team.AllocationRepository
	accounts    billing.AccountRepository
	publisher   shared.EventPublisher
	logger      *zap.Logger
}

// TeamServiceConfig contains the dependencies of TeamService
type TeamServiceConfig struct {
	Scope       TransactionScope
	Teams       team.TeamRepository
	Members     team.MemberRepository
	Allocations team.AllocationRepository
	Accounts    billing.AccountRepository
	Publisher   shared.EventPublisher
	Logger      *zap.Logger
}

// NewTeamService creates a new TeamService
func NewTeamService(cfg TeamServiceConfig) *TeamService {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeamService{
		scope:       cfg.Scope,
		teams:       cfg.Teams,
		members:     cfg.Members,
		allocations: cfg.Allocations,
		accounts:    cfg.Accounts,
		publisher:   cfg.Publisher,
		logger:      logger,
	}
}

// CreateTeam creates a team owned by ownerID. The owner needs a plan with team
// seats unless they hold a staff role.
func (s *TeamService) CreateTeam(ctx context.Context, ownerID string, role shared.Role, name string) (*TeamResponse, error) {
	if !role.HasUnlimitedAccess() {
		account, err := s.accounts.GetOrCreate(ctx, ownerID)
		if err != nil {
			return nil, fmt.Errorf("load account: %w", err)
		}
		plan, err := billing.GetPlan(account.Plan)
		if err != nil {
			return nil, err
		}
		if !plan.AllowsTeams() {
			return nil, shared.NewDomainError("PLAN_REQUIRED", "An enterprise plan is required to create a team")
		}
	}

	t, err := team.NewTeam(ownerID, name)
	if err != nil {
		return nil, err
	}

	err = s.scope.Execute(ctx, func(repos Repositories) error {
		if _, err := repos.TeamRepo().FindByOwner(ctx, ownerID); err == nil {
			return shared.NewDomainError("ALREADY_EXISTS", "User already owns a team")
		} else if !errors.Is(err, shared.ErrNotFound) {
			return err
		}
		if _, err := repos.MemberRepo().FindActiveByUser(ctx, ownerID); err == nil {
			return shared.NewDomainError("ALREADY_MEMBER", "User is already a member of a team")
		} else if !errors.Is(err, shared.ErrNotFound) {
			return err
		}

		if err := repos.TeamRepo().Create(ctx, t); err != nil {
			return fmt.Errorf("create team: %w", err)
		}
		owner, err := team.NewMember(t.ID, ownerID, team.MemberRoleOwner)
		if err != nil {
			return err
		}
		if err := repos.MemberRepo().Create(ctx, owner); err != nil {
			return fmt.Errorf("create owner membership: %w", err)
		}
		return repos.ActivityRepo().Create(ctx,
			team.NewActivityLog(t.ID, ownerID, team.ActivityTeamCreated, "Team created: "+t.Name))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Team created",
		zap.String("team_id", t.ID.String()),
		zap.String("owner_id", ownerID))

	resp := ToTeamResponse(t, true)
	return &resp, nil
}

// JoinTeam adds userID to the team with the given invite code
func (s *TeamService) JoinTeam(ctx context.Context, userID, inviteCode string) (*MemberResponse, error) {
	t, err := s.teams.FindByInviteCode(ctx, inviteCode)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewDomainError("INVALID_INVITE", "Invite code is not valid")
		}
		return nil, err
	}

	var member *team.Member
	err = s.scope.Execute(ctx, func(repos Repositories) error {
		if _, err := repos.MemberRepo().FindActiveByUser(ctx, userID); err == nil {
			return shared.NewDomainError("ALREADY_MEMBER", "User is already a member of a team")
		} else if !errors.Is(err, shared.ErrNotFound) {
			return err
		}
		count, err := repos.MemberRepo().CountActive(ctx, t.ID)
		if err != nil {
			return err
		}
		if count >= int64(t.MaxMembers) {
			return shared.NewDomainError("TEAM_FULL", "Team has reached its member limit")
		}

		member, err = team.NewMember(t.ID, userID, team.MemberRoleMember)
		if err != nil {
			return err
		}
		if err := repos.MemberRepo().Create(ctx, member); err != nil {
			return fmt.Errorf("create membership: %w", err)
		}
		return repos.ActivityRepo().Create(ctx,
			team.NewActivityLog(t.ID, userID, team.ActivityMemberJoined, "Joined via invite code").WithTarget(userID))
	})
	if err != nil {
		return nil, err
	}

	resp := ToMemberResponse(member)
	return &resp, nil
}

// FundPool moves amount credits from the owner's personal balance into the team pool
func (s *TeamService) FundPool(ctx context.Context, teamID uuid.UUID, actorID string, amount int64) (*TeamResponse, error) {
	if err := team.ValidateAmount(amount); err != nil {
		return nil, err
	}

	var funded *team.Team
	err := s.scope.Execute(ctx, func(repos Repositories) error {
		t, err := repos.TeamRepo().FindByID(ctx, teamID)
		if err != nil {
			return err
		}
		if !t.IsOwner(actorID) {
			return shared.NewDomainError("FORBIDDEN", "Only the team owner can fund the pool")
		}

		balance, err := repos.BalanceRepo().Debit(ctx, actorID, amount)
		if err != nil {
			return fmt.Errorf("debit owner: %w", err)
		}
		if balance == nil {
			return shared.ErrInsufficientCredits
		}
		if err := balance.Verify(); err != nil {
			return err
		}

		tx := credit.NewDebitTransaction(actorID, amount, credit.SourceTeam, credit.BucketPersonal, "team_pool_fund", balance.Balance).
			WithDescription("Fund team pool: " + t.Name).
			WithTeam(t.ID)
		if _, err := repos.TransactionRepo().Append(ctx, tx); err != nil {
			return fmt.Errorf("append transaction: %w", err)
		}

		funded, err = repos.TeamRepo().AddToPool(ctx, t.ID, amount)
		if err != nil {
			return fmt.Errorf("add to pool: %w", err)
		}
		if err := funded.Verify(); err != nil {
			return err
		}

		return repos.ActivityRepo().Create(ctx,
			team.NewActivityLog(t.ID, actorID, team.ActivityPoolFunded, fmt.Sprintf("Funded pool with %d credits", amount)).
				With("amount", amount).
				With("pool_after", funded.CreditPool))
	})
	if err != nil {
		return nil, s.logIntegrity(err, "fund_pool", teamID)
	}

	s.publish(ctx, team.NewPoolFundedEvent(funded, amount))

	resp := ToTeamResponse(funded, true)
	return &resp, nil
}

// Allocate moves amount from the team's unallocated pool to a member.
// Returns ErrInsufficientPool when the pool cannot cover it.
func (s *TeamService) Allocate(ctx context.Context, teamID, memberID uuid.UUID, amount int64, allocatedBy string) (*AllocationResult, error) {
	if err := team.ValidateAmount(amount); err != nil {
		return nil, err
	}

	var result *AllocationResult
	var history *team.CreditAllocation
	err := s.scope.Execute(ctx, func(repos Repositories) error {
		t, member, err := s.loadManagedMember(ctx, repos, teamID, memberID, allocatedBy)
		if err != nil {
			return err
		}
		if !member.IsActive() {
			return shared.NewDomainError("INVALID_STATE", "Member is not active")
		}

		reserved, err := repos.TeamRepo().ReserveAllocation(ctx, t.ID, amount)
		if err != nil {
			return fmt.Errorf("reserve allocation: %w", err)
		}
		if reserved == nil {
			return shared.ErrInsufficientPool
		}
		if err := reserved.Verify(); err != nil {
			return err
		}

		updated, err := repos.MemberRepo().IncreaseAllocation(ctx, member.ID, amount)
		if err != nil {
			return fmt.Errorf("increase allocation: %w", err)
		}
		if updated == nil {
			return shared.NewDomainError("INVALID_STATE", "Member is not active")
		}
		if err := updated.Verify(); err != nil {
			return err
		}

		history = team.NewCreditAllocation(t.ID, member.ID, team.AllocationKindAllocate, amount, updated.AllocatedCredits, allocatedBy, "")
		if err := repos.AllocationRepo().Create(ctx, history); err != nil {
			return fmt.Errorf("record allocation: %w", err)
		}
		if err := repos.ActivityRepo().Create(ctx,
			team.NewActivityLog(t.ID, allocatedBy, team.ActivityCreditsAllocate, fmt.Sprintf("Allocated %d credits", amount)).
				WithTarget(member.UserID).
				With("amount", amount).
				With("balance_after", updated.AllocatedCredits)); err != nil {
			return err
		}

		result = &AllocationResult{
			MemberID:         member.ID,
			AllocatedCredits: updated.AllocatedCredits,
			Available:        updated.Available(),
			TeamUnallocated:  reserved.Unallocated(),
		}
		return nil
	})
	if err != nil {
		return nil, s.logIntegrity(err, "allocate", teamID)
	}

	s.publish(ctx, team.NewAllocationChangedEvent(history))
	return result, nil
}

// Reclaim pulls unused credits back from a member into the pool.
// Returns ErrInsufficientUnused when the member has spent too much of the allocation.
func (s *TeamService) Reclaim(ctx context.Context, teamID, memberID uuid.UUID, amount int64, reclaimedBy string) (*AllocationResult, error) {
	if err := team.ValidateAmount(amount); err != nil {
		return nil, err
	}

	var result *AllocationResult
	var history *team.CreditAllocation
	err := s.scope.Execute(ctx, func(repos Repositories) error {
		t, member, err := s.loadManagedMember(ctx, repos, teamID, memberID, reclaimedBy)
		if err != nil {
			return err
		}

		updated, err := repos.MemberRepo().DecreaseAllocation(ctx, member.ID, amount)
		if err != nil {
			return fmt.Errorf("decrease allocation: %w", err)
		}
		if updated == nil {
			return shared.ErrInsufficientUnused
		}
		if err := updated.Verify(); err != nil {
			return err
		}

		released, err := repos.TeamRepo().ReleaseAllocation(ctx, t.ID, amount)
		if err != nil {
			return fmt.Errorf("release allocation: %w", err)
		}
		if released == nil {
			return shared.NewIntegrityError("team_allocated_covers_members", "team:"+t.ID.String(),
				fmt.Sprintf("team allocation below member reclaim of %d", amount))
		}

		history = team.NewCreditAllocation(t.ID, member.ID, team.AllocationKindReclaim, amount, updated.AllocatedCredits, reclaimedBy, "")
		if err := repos.AllocationRepo().Create(ctx, history); err != nil {
			return fmt.Errorf("record reclaim: %w", err)
		}
		if err := repos.ActivityRepo().Create(ctx,
			team.NewActivityLog(t.ID, reclaimedBy, team.ActivityCreditsReclaim, fmt.Sprintf("Reclaimed %d credits", amount)).
				WithTarget(member.UserID).
				With("amount", amount).
				With("balance_after", updated.AllocatedCredits)); err != nil {
			return err
		}

		result = &AllocationResult{
			MemberID:         member.ID,
			AllocatedCredits: updated.AllocatedCredits,
			Available:        updated.Available(),
			TeamUnallocated:  released.Unallocated(),
		}
		return nil
	})
	if err != nil {
		return nil, s.logIntegrity(err, "reclaim", teamID)
	}

	s.publish(ctx, team.NewAllocationChangedEvent(history))
	return result, nil
}

// ConsumeTeamCredits spends amount from a member's allocation.
// Returns false, with nothing changed, when the allocation cannot cover it.
func (s *TeamService) ConsumeTeamCredits(ctx context.Context, teamID, memberID uuid.UUID, amount int64) (bool, error) {
	var ok bool
	err := s.scope.Execute(ctx, func(repos Repositories) error {
		var err error
		_, ok, err = ConsumeCredits(ctx, repos, teamID, memberID, amount, "")
		return err
	})
	if err != nil {
		return false, s.logIntegrity(err, "consume", teamID)
	}
	return ok, nil
}

// RemoveMember deactivates a member and returns their unused allocation to the pool
func (s *TeamService) RemoveMember(ctx context.Context, teamID, memberID uuid.UUID, actorID string) error {
	var history *team.CreditAllocation
	err := s.scope.Execute(ctx, func(repos Repositories) error {
		t, member, err := s.loadManagedMember(ctx, repos, teamID, memberID, actorID)
		if err != nil {
			return err
		}
		if member.Role == team.MemberRoleOwner {
			return shared.NewDomainError("FORBIDDEN", "The team owner cannot be removed")
		}
		if !member.IsActive() {
			return shared.NewDomainError("INVALID_STATE", "Member is already removed")
		}

		released, err := repos.MemberRepo().MarkRemoved(ctx, member.ID)
		if err != nil {
			return fmt.Errorf("remove member: %w", err)
		}
		if released > 0 {
			updatedTeam, err := repos.TeamRepo().ReleaseAllocation(ctx, t.ID, released)
			if err != nil {
				return fmt.Errorf("release allocation: %w", err)
			}
			if updatedTeam == nil {
				return shared.NewIntegrityError("team_allocated_covers_members", "team:"+t.ID.String(),
					fmt.Sprintf("team allocation below released %d", released))
			}
			history = team.NewCreditAllocation(t.ID, member.ID, team.AllocationKindRelease, released, member.UsedCredits, actorID, "member removed")
			if err := repos.AllocationRepo().Create(ctx, history); err != nil {
				return fmt.Errorf("record release: %w", err)
			}
		}

		return repos.ActivityRepo().Create(ctx,
			team.NewActivityLog(t.ID, actorID, team.ActivityMemberRemoved, "Member removed").
				WithTarget(member.UserID).
				With("released", released))
	})
	if err != nil {
		return s.logIntegrity(err, "remove_member", teamID)
	}

	if history != nil {
		s.publish(ctx, team.NewAllocationChangedEvent(history))
	}
	return nil
}

// GetTeamCredits returns pool totals, members and recent allocation history.
// Only active members of the team may read it.
func (s *TeamService) GetTeamCredits(ctx context.Context, teamID uuid.UUID, requesterID string) (*TeamCreditsResponse, error) {
	t, err := s.teams.FindByID(ctx, teamID)
	if err != nil {
		return nil, err
	}

	manager := t.IsOwner(requesterID)
	if !manager {
		m, err := s.members.FindActiveByUser(ctx, requesterID)
		switch {
		case errors.Is(err, shared.ErrNotFound):
			return nil, shared.ErrForbidden
		case err != nil:
			return nil, fmt.Errorf("load membership: %w", err)
		case m.TeamID != t.ID:
			return nil, shared.ErrForbidden
		}
		manager = m.Role.CanManageCredits()
	}

	members, err := s.members.ListByTeam(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	allocations, err := s.allocations.ListByTeam(ctx, t.ID, recentAllocationLimit)
	if err != nil {
		return nil, err
	}

	resp := &TeamCreditsResponse{
		Team:        ToTeamResponse(t, manager),
		Members:     make([]MemberResponse, 0, len(members)),
		Allocations: make([]AllocationResponse, 0, len(allocations)),
	}
	for _, m := range members {
		resp.Members = append(resp.Members, ToMemberResponse(m))
	}
	for _, a := range allocations {
		resp.Allocations = append(resp.Allocations, ToAllocationResponse(a))
	}
	return resp, nil
}

// ConsumeCredits spends amount from a member's allocation inside an existing
// transaction. The credit ledger calls it for team-funded charges.
func ConsumeCredits(ctx context.Context, repos Repositories, teamID, memberID uuid.UUID, amount int64, action string) (*team.Member, bool, error) {
	member, err := repos.MemberRepo().FindByID(ctx, memberID)
	if err != nil {
		return nil, false, err
	}
	if member.TeamID != teamID {
		return nil, false, shared.NewDomainError("NOT_FOUND", "Member not found in team")
	}

	updated, err := repos.MemberRepo().Consume(ctx, member.ID, amount)
	if err != nil {
		return nil, false, fmt.Errorf("consume team credits: %w", err)
	}
	if updated == nil {
		return member, false, nil
	}
	if err := updated.Verify(); err != nil {
		return nil, false, err
	}

	log := team.NewActivityLog(teamID, member.UserID, team.ActivityCreditsConsumed, fmt.Sprintf("Used %d team credits", amount)).
		WithTarget(member.UserID).
		With("amount", amount).
		With("available_after", updated.Available())
	if action != "" {
		log.With("action", action)
	}
	if err := repos.ActivityRepo().Create(ctx, log); err != nil {
		return nil, false, err
	}
	return updated, true, nil
}

// loadManagedMember loads the team and member and checks that actorID may manage credits
func (s *TeamService) loadManagedMember(ctx context.Context, repos Repositories, teamID, memberID uuid.UUID, actorID string) (*team.Team, *team.Member, error) {
	t, err := repos.TeamRepo().FindByID(ctx, teamID)
	if err != nil {
		return nil, nil, err
	}
	if !t.IsOwner(actorID) {
		actor, err := repos.MemberRepo().FindActiveByUser(ctx, actorID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return nil, nil, shared.ErrForbidden
			}
			return nil, nil, err
		}
		if actor.TeamID != t.ID || !actor.Role.CanManageCredits() {
			return nil, nil, shared.ErrForbidden
		}
	}

	member, err := repos.MemberRepo().FindByID(ctx, memberID)
	if err != nil {
		return nil, nil, err
	}
	if member.TeamID != t.ID {
		return nil, nil, shared.NewDomainError("NOT_FOUND", "Member not found in team")
	}
	return t, member, nil
}

func (s *TeamService) logIntegrity(err error, op string, teamID uuid.UUID) error {
	if shared.IsIntegrityError(err) {
		s.logger.Error("Team ledger integrity violation",
			zap.String("operation", op),
			zap.String("team_id", teamID.String()),
			zap.Error(err))
	}
	return err
}

func (s *TeamService) publish(ctx context.Context, events ...shared.DomainEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.logger.Warn("Failed to publish team events", zap.Error(err))
	}
}
