package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/recleague/tracker/engine"
	"github.com/recleague/tracker/models"
	"github.com/recleague/tracker/repositories"
	"github.com/recleague/tracker/storage"
)

type PlayerService interface {
	CreatePlayer(ctx context.Context, teamID int, name string) (*models.Player, error)
	GetPlayer(ctx context.Context, id int) (*models.Player, error)
	// Leaderboard lists a team's players strongest first.
	Leaderboard(ctx context.Context, teamID int) ([]*models.Player, error)
	RenamePlayer(ctx context.Context, id int, name string) error
	UploadAvatar(ctx context.Context, id int, contentType string, data io.Reader) (*models.Player, error)
	DeletePlayer(ctx context.Context, id int) error
}

type playerService struct {
	playerRepo repositories.PlayerRepository
	teamRepo   repositories.TeamRepository
	uploader   storage.FileUploader
}

func NewPlayerService(playerRepo repositories.PlayerRepository, teamRepo repositories.TeamRepository, uploader storage.FileUploader) PlayerService {
	return &playerService{playerRepo: playerRepo, teamRepo: teamRepo, uploader: uploader}
}

func (s *playerService) CreatePlayer(ctx context.Context, teamID int, name string) (*models.Player, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: player name is required", ErrValidationFailed)
	}
	if _, err := s.teamRepo.GetByID(ctx, teamID); err != nil {
		if errors.Is(err, repositories.ErrTeamNotFound) {
			return nil, ErrTeamNotFound
		}
		return nil, err
	}

	player := &models.Player{
		TeamID: teamID,
		Name:   name,
		Mu:     engine.InitialMu,
		Sigma:  engine.InitialSigma,
	}
	if err := s.playerRepo.Create(ctx, player); err != nil {
		return nil, err
	}
	return player, nil
}

func (s *playerService) GetPlayer(ctx context.Context, id int) (*models.Player, error) {
	player, err := s.playerRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrPlayerNotFound) {
			return nil, ErrPlayerNotFound
		}
		return nil, err
	}
	fillPlayerURL(s.uploader, player)
	return player, nil
}

func (s *playerService) Leaderboard(ctx context.Context, teamID int) ([]*models.Player, error) {
	players, err := s.playerRepo.ListByTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	for _, p := range players {
		fillPlayerURL(s.uploader, p)
	}
	return players, nil
}

func (s *playerService) RenamePlayer(ctx context.Context, id int, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: player name is required", ErrValidationFailed)
	}
	err := s.playerRepo.UpdateName(ctx, id, name)
	if errors.Is(err, repositories.ErrPlayerNotFound) {
		return ErrPlayerNotFound
	}
	return err
}

func (s *playerService) UploadAvatar(ctx context.Context, id int, contentType string, data io.Reader) (*models.Player, error) {
	player, err := s.playerRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrPlayerNotFound) {
			return nil, ErrPlayerNotFound
		}
		return nil, err
	}

	key := fmt.Sprintf("players/%d/avatar", id)
	if _, err := s.uploader.Upload(ctx, key, contentType, data); err != nil {
		return nil, fmt.Errorf("failed to upload avatar for player %d: %w", id, err)
	}
	if err := s.playerRepo.UpdateAvatarKey(ctx, id, &key); err != nil {
		return nil, err
	}

	player.AvatarKey = &key
	fillPlayerURL(s.uploader, player)
	return player, nil
}

func (s *playerService) DeletePlayer(ctx context.Context, id int) error {
	player, err := s.playerRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrPlayerNotFound) {
			return ErrPlayerNotFound
		}
		return err
	}

	if err := s.playerRepo.Delete(ctx, id); err != nil {
		return err
	}
	if player.AvatarKey != nil {
		_ = s.uploader.Delete(ctx, *player.AvatarKey)
	}
	return nil
}
