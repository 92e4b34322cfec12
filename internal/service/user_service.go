package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/tahamediouni1/RebiiProject/internal/apperr"
	"github.com/tahamediouni1/RebiiProject/internal/domain"
	"github.com/tahamediouni1/RebiiProject/internal/dto"
	"github.com/tahamediouni1/RebiiProject/internal/repository"
	"github.com/tahamediouni1/RebiiProject/internal/utils"
)

func privateUser(user *domain.User) dto.PrivateUser {
	return dto.PrivateUser{
		Username:       user.Username,
		Email:          user.Email,
		FirstName:      user.FirstName,
		LastName:       user.LastName,
		Birthdate:      user.Birthdate,
		DateJoined:     user.CreatedAt,
		ProfilePicture: user.ProfilePicture,
		EmailConfirmed: user.EmailConfirmed,
	}
}

// FetchUser returns the caller's own profile.
func (s *authService) FetchUser(ctx context.Context, userID string) (*dto.PrivateUserResponse, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &dto.PrivateUserResponse{
		Message: "User fetched successfully",
		User:    privateUser(user),
	}, nil
}

// FetchUserByID returns the public profile of any account.
func (s *authService) FetchUserByID(ctx context.Context, userID string) (*dto.UserResponse, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &dto.UserResponse{
		Message: "User fetched successfully",
		User: dto.PublicUser{
			Username:       user.Username,
			FirstName:      user.FirstName,
			LastName:       user.LastName,
			Birthdate:      user.Birthdate,
			DateJoined:     user.CreatedAt,
			ProfilePicture: user.ProfilePicture,
			EmailConfirmed: user.EmailConfirmed,
		},
	}, nil
}

// FetchAllUsers returns the admin listing of every account.
func (s *authService) FetchAllUsers(ctx context.Context) (*dto.UsersListResponse, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, apperr.Internal("failed to list users", err)
	}

	out := make([]dto.AdminUser, 0, len(users))
	for _, user := range users {
		out = append(out, dto.AdminUser{
			ID:             user.ID,
			Username:       user.Username,
			Email:          user.Email,
			FirstName:      user.FirstName,
			LastName:       user.LastName,
			Birthdate:      user.Birthdate,
			ProfilePicture: user.ProfilePicture,
			PhoneNumber:    user.PhoneNumber,
			IsAdmin:        user.IsAdmin,
			Role:           user.Role(),
			DateJoined:     user.CreatedAt,
		})
	}
	return &dto.UsersListResponse{Message: "Users fetched successfully", Users: out}, nil
}

// UpdateUser applies a partial profile update. A changed email address goes
// back to unconfirmed and gets a fresh confirmation token.
func (s *authService) UpdateUser(ctx context.Context, userID string, req *dto.UpdateUserRequest) (*dto.PrivateUserResponse, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.Username != nil && *req.Username != user.Username {
		if !utils.ValidateUsername(*req.Username) {
			return nil, apperr.Validation("Username must be between 5 and 20 characters")
		}
		if _, err := s.userRepo.GetByUsername(ctx, *req.Username); err == nil {
			return nil, apperr.Conflict("", "Username is already taken")
		} else if !errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Internal("failed to check username", err)
		}
		user.Username = *req.Username
	}

	var sendConfirmation bool
	if req.Email != nil {
		newEmail := utils.SanitizeEmail(*req.Email)
		if newEmail != user.Email {
			if !utils.ValidateEmail(newEmail) {
				return nil, apperr.Validation("Invalid email format")
			}
			if _, err := s.userRepo.GetByEmail(ctx, newEmail); err == nil {
				return nil, apperr.Conflict("", "Email is already registered")
			} else if !errors.Is(err, repository.ErrNotFound) {
				return nil, apperr.Internal("failed to check email", err)
			}
			token, err := utils.RandomHex(16)
			if err != nil {
				return nil, apperr.Internal("failed to generate confirmation token", err)
			}
			user.Email = newEmail
			user.EmailConfirmed = false
			user.EmailToken = &token
			sendConfirmation = true
		}
	}

	if req.Password != nil {
		if !utils.ValidatePassword(*req.Password) {
			return nil, apperr.Validation("Password must be at least 6 characters")
		}
		hash, err := utils.HashPassword(*req.Password, s.bcryptCost)
		if err != nil {
			return nil, apperr.Internal("unable to process password", err)
		}
		user.PasswordHash = hash
	}

	if req.Birthdate != nil {
		birthdate, err := parseBirthdate(*req.Birthdate)
		if err != nil {
			return nil, apperr.Validation("Failed to parse birthdate")
		}
		user.Birthdate = birthdate
	}

	if req.FirstName != nil {
		user.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		user.LastName = *req.LastName
	}
	if req.PhoneNumber != nil {
		user.PhoneNumber = req.PhoneNumber
	}
	if req.ProfilePicture != nil {
		user.ProfilePicture = req.ProfilePicture
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateUser) {
			return nil, apperr.Conflict("", "Username or email is already registered")
		}
		return nil, apperr.Internal("failed to update user", err)
	}

	if sendConfirmation {
		if err := s.email.SendConfirmationEmail(ctx, user.Email, *user.EmailToken); err != nil {
			s.logger.Error("failed to send confirmation email after address change",
				zap.String("user_id", user.ID), zap.Error(err))
		}
	}

	return &dto.PrivateUserResponse{
		Message: "User updated successfully",
		User:    privateUser(user),
	}, nil
}

// DeleteUser removes the caller's own account.
func (s *authService) DeleteUser(ctx context.Context, userID string) error {
	if err := s.userRepo.Delete(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("User not found")
		}
		return apperr.Internal("failed to delete user", err)
	}
	return nil
}

// DeleteUserByAdmin removes another account. Admins cannot delete
// themselves through this path.
func (s *authService) DeleteUserByAdmin(ctx context.Context, adminID, userID string) error {
	if adminID == userID {
		return apperr.Validation("Admins cannot delete their own account")
	}
	if _, err := s.getUser(ctx, userID); err != nil {
		return err
	}
	if err := s.userRepo.Delete(ctx, userID); err != nil {
		return apperr.Internal("failed to delete user", err)
	}
	return nil
}

func (s *authService) getUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("User not found")
		}
		return nil, apperr.Internal("failed to get user", err)
	}
	return user, nil
}
