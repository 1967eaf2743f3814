package access

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"rentacar/internal/bizdate"
	"rentacar/internal/models"
)

type mockStaffRepo struct {
	mock.Mock
}

func (m *mockStaffRepo) GetStaff(ctx context.Context, userID int64) (*models.Staff, error) {
	args := m.Called(ctx, userID)
	if s := args.Get(0); s != nil {
		return s.(*models.Staff), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStaffRepo) AddStaff(ctx context.Context, s *models.Staff) error {
	return m.Called(ctx, s).Error(0)
}

func (m *mockStaffRepo) RemoveStaff(ctx context.Context, userID int64) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *mockStaffRepo) ListStaff(ctx context.Context) ([]models.Staff, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.Staff), args.Error(1)
}

func newTestService(repo StaffRepository) *Service {
	return NewService(repo, zerolog.New(io.Discard))
}

func TestService_Role(t *testing.T) {
	ctx := context.Background()
	repo := &mockStaffRepo{}
	repo.On("GetStaff", ctx, int64(1)).Return(&models.Staff{UserID: 1, Role: models.RoleAdmin}, nil)
	repo.On("GetStaff", ctx, int64(2)).Return(nil, nil)
	repo.On("GetStaff", ctx, int64(3)).Return(nil, errors.New("db down"))
	repo.On("GetStaff", ctx, int64(4)).Return(&models.Staff{UserID: 4, Role: "OWNER"}, nil)
	svc := newTestService(repo)

	role, err := svc.Role(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, role)

	_, err = svc.Role(ctx, 2)
	assert.True(t, IsAccessDenied(err))

	_, err = svc.Role(ctx, 3)
	assert.Error(t, err)
	assert.False(t, IsAccessDenied(err))

	_, err = svc.Role(ctx, 4)
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestService_Authorize(t *testing.T) {
	ctx := context.Background()
	repo := &mockStaffRepo{}
	repo.On("GetStaff", ctx, int64(1)).Return(&models.Staff{UserID: 1, Role: models.RoleAdmin}, nil)
	repo.On("GetStaff", ctx, int64(9)).Return(&models.Staff{UserID: 9, Role: models.RoleSuperadmin}, nil)
	svc := newTestService(repo)

	r := &models.Reservation{
		ID:        "r1",
		Ownership: models.OwnershipClient,
		Confirmed: true,
		Start:     bizdate.NewDay(2026, 6, 1).Midnight(),
		End:       bizdate.NewDay(2026, 6, 5).Midnight(),
	}
	r.Sync()
	now := bizdate.NewDay(2026, 5, 1).Midnight()

	d, err := svc.Authorize(ctx, 1, r, now, ActionEdit)
	require.NoError(t, err)
	assert.True(t, d.NotifySuperadminOnEdit)

	_, err = svc.Authorize(ctx, 1, r, now, ActionDelete)
	assert.True(t, IsAccessDenied(err))

	_, err = svc.Authorize(ctx, 1, r, now, ActionEditPricing)
	assert.True(t, IsAccessDenied(err))

	d, err = svc.Authorize(ctx, 9, r, now, ActionDelete)
	require.NoError(t, err)
	assert.False(t, d.NotifySuperadminOnEdit)
}

func TestService_ManageStaff(t *testing.T) {
	ctx := context.Background()
	repo := &mockStaffRepo{}
	repo.On("GetStaff", ctx, int64(1)).Return(&models.Staff{UserID: 1, Role: models.RoleAdmin}, nil)
	repo.On("GetStaff", ctx, int64(9)).Return(&models.Staff{UserID: 9, Role: models.RoleSuperadmin}, nil)
	repo.On("GetStaff", ctx, int64(404)).Return(nil, nil)
	repo.On("AddStaff", ctx, mock.MatchedBy(func(s *models.Staff) bool {
		return s.UserID == 5 && s.Role == models.RoleAdmin && s.AddedBy == 9
	})).Return(nil)
	repo.On("RemoveStaff", ctx, int64(5)).Return(nil)
	repo.On("ListStaff", ctx).Return([]models.Staff{{UserID: 9, Role: models.RoleSuperadmin}}, nil)
	svc := newTestService(repo)

	list, err := svc.ListStaff(ctx, 9)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	_, err = svc.ListStaff(ctx, 1)
	assert.True(t, IsAccessDenied(err))
	assert.NoError(t, svc.Middleware(ctx, 1))
	assert.True(t, IsAccessDenied(svc.Middleware(ctx, 404)))

	require.NoError(t, svc.AddStaff(ctx, 5, "Nikos", models.RoleAdmin, 9))
	assert.True(t, IsAccessDenied(svc.AddStaff(ctx, 6, "Eleni", models.RoleAdmin, 1)))
	assert.ErrorIs(t, svc.AddStaff(ctx, 6, "Eleni", "OWNER", 9), ErrUnknownRole)

	require.NoError(t, svc.RemoveStaff(ctx, 5, 9))
	assert.True(t, IsAccessDenied(svc.RemoveStaff(ctx, 5, 1)))

	repo.AssertExpectations(t)
}
