package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/recleague/tracker/models"
	"github.com/recleague/tracker/repositories"
	"github.com/recleague/tracker/storage"
)

type TeamService interface {
	CreateTeam(ctx context.Context, ownerID int, name string) (*models.Team, error)
	GetTeam(ctx context.Context, id int) (*models.Team, error)
	ListTeams(ctx context.Context, ownerID int) ([]*models.Team, error)
	RenameTeam(ctx context.Context, id int, name string) error
	UploadCrest(ctx context.Context, id int, contentType string, data io.Reader) (*models.Team, error)
	DeleteTeam(ctx context.Context, id int) error
}

type teamService struct {
	teamRepo   repositories.TeamRepository
	playerRepo repositories.PlayerRepository
	uploader   storage.FileUploader
}

func NewTeamService(teamRepo repositories.TeamRepository, playerRepo repositories.PlayerRepository, uploader storage.FileUploader) TeamService {
	return &teamService{teamRepo: teamRepo, playerRepo: playerRepo, uploader: uploader}
}

func (s *teamService) CreateTeam(ctx context.Context, ownerID int, name string) (*models.Team, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: team name is required", ErrValidationFailed)
	}

	team := &models.Team{Name: name, OwnerID: ownerID}
	if err := s.teamRepo.Create(ctx, team); err != nil {
		return nil, err
	}
	return team, nil
}

func (s *teamService) GetTeam(ctx context.Context, id int) (*models.Team, error) {
	team, err := s.teamRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrTeamNotFound) {
			return nil, ErrTeamNotFound
		}
		return nil, err
	}

	players, err := s.playerRepo.ListByTeam(ctx, id)
	if err != nil {
		return nil, err
	}
	team.Players = players
	s.fillURLs(team)
	return team, nil
}

func (s *teamService) ListTeams(ctx context.Context, ownerID int) ([]*models.Team, error) {
	teams, err := s.teamRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for _, team := range teams {
		s.fillURLs(team)
	}
	return teams, nil
}

func (s *teamService) RenameTeam(ctx context.Context, id int, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: team name is required", ErrValidationFailed)
	}
	err := s.teamRepo.UpdateName(ctx, id, name)
	if errors.Is(err, repositories.ErrTeamNotFound) {
		return ErrTeamNotFound
	}
	return err
}

func (s *teamService) UploadCrest(ctx context.Context, id int, contentType string, data io.Reader) (*models.Team, error) {
	team, err := s.teamRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrTeamNotFound) {
			return nil, ErrTeamNotFound
		}
		return nil, err
	}

	key := fmt.Sprintf("teams/%d/crest", id)
	if _, err := s.uploader.Upload(ctx, key, contentType, data); err != nil {
		return nil, fmt.Errorf("failed to upload crest for team %d: %w", id, err)
	}
	if err := s.teamRepo.UpdateCrestKey(ctx, id, &key); err != nil {
		return nil, err
	}

	team.CrestKey = &key
	s.fillURLs(team)
	return team, nil
}

func (s *teamService) DeleteTeam(ctx context.Context, id int) error {
	team, err := s.teamRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrTeamNotFound) {
			return ErrTeamNotFound
		}
		return err
	}

	if err := s.teamRepo.Delete(ctx, id); err != nil {
		return err
	}
	if team.CrestKey != nil {
		// Best effort: the record is gone either way.
		_ = s.uploader.Delete(ctx, *team.CrestKey)
	}
	return nil
}

func (s *teamService) fillURLs(team *models.Team) {
	if team.CrestKey != nil {
		url := s.uploader.GetPublicURL(*team.CrestKey)
		team.CrestURL = &url
	}
	for _, p := range team.Players {
		fillPlayerURL(s.uploader, p)
	}
}

func fillPlayerURL(uploader storage.FileUploader, p *models.Player) {
	if p.AvatarKey != nil {
		url := uploader.GetPublicURL(*p.AvatarKey)
		p.AvatarURL = &url
	}
}
