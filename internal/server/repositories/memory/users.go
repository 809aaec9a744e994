package memory

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/fooddelivery/internal/common"
	"github.com/dmitrijs2005/fooddelivery/internal/server/models"
	"github.com/google/uuid"
)

type usersRepo struct {
	m *Manager
}

func (r *usersRepo) Create(ctx context.Context, user *models.User) (*models.User, error) {
	err := r.m.do(ctx, func(st *state) error {
		for _, u := range st.users {
			if strings.EqualFold(u.Email, user.Email) {
				return common.ErrAlreadyExists
			}
		}
		if user.ID == "" {
			user.ID = uuid.NewString()
		}
		user.CreatedAt = r.m.now()
		st.users[user.ID] = *user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (r *usersRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var out *models.User
	err := r.m.do(ctx, func(st *state) error {
		for _, u := range st.users {
			if strings.EqualFold(u.Email, email) {
				out = &u
				return nil
			}
		}
		return common.ErrorNotFound
	})
	return out, err
}

func (r *usersRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	var out *models.User
	err := r.m.do(ctx, func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return common.ErrorNotFound
		}
		out = &u
		return nil
	})
	return out, err
}
