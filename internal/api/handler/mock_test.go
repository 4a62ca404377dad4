package handler

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/edvin/sitehost/internal/model"
	"github.com/edvin/sitehost/internal/workflow"
)

type mockSiteService struct {
	mock.Mock
}

func (m *mockSiteService) CreateSite(ctx context.Context, p workflow.CreateSiteParams) (*model.Site, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Site), args.Error(1)
}

func (m *mockSiteService) DeleteSite(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *mockSiteService) ListSites(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockSiteService) GetSite(ctx context.Context, name string) (*model.Site, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Site), args.Error(1)
}

func (m *mockSiteService) MigrateSite(ctx context.Context, name string) (*model.MigrationResult, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MigrationResult), args.Error(1)
}

func (m *mockSiteService) HealthCheck(ctx context.Context, name string) (*model.Health, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Health), args.Error(1)
}

func (m *mockSiteService) BackupSite(ctx context.Context, name string, includeFiles bool) (*model.BackupRecord, error) {
	args := m.Called(ctx, name, includeFiles)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.BackupRecord), args.Error(1)
}

func (m *mockSiteService) ListBackups(ctx context.Context, name string) ([]model.BackupRecord, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.BackupRecord), args.Error(1)
}

func (m *mockSiteService) Stats(ctx context.Context) (*model.Stats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Stats), args.Error(1)
}
