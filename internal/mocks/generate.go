// Package mocks provides mock implementations for testing the tweetvault archive system.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our repository
// and gateway interfaces. The mocks are generated using go:generate directives and provide a
// fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	mockRepo := mocks.NewMockTaskRepository(ctrl)
//	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(task, nil)
package mocks

// Generate mock for TaskRepository interface from internal/core package.
// This creates MockTaskRepository with methods for all TaskRepository interface methods:
// Create, GetByID, ReserveNext, WaitForNotification, Heartbeat, Complete, Fail, Stats, List, Delete
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=task_repository_mock.go github.com/fimiwatch/tweetvault/internal/core TaskRepository

// Generate mock for ReaperRepository interface from internal/core package.
// This creates MockReaperRepository with methods for all ReaperRepository interface methods:
// FailStaleRunningTasks, DeleteOldTasks
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=reaper_repository_mock.go github.com/fimiwatch/tweetvault/internal/core ReaperRepository

// Generate mock for SourceGateway interface from internal/core package.
// This creates MockSourceGateway with methods for all SourceGateway interface methods:
// Search, Count
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=source_gateway_mock.go github.com/fimiwatch/tweetvault/internal/core SourceGateway

// Generate mock for SinkGateway interface from internal/core package.
// This creates MockSinkGateway with methods for all SinkGateway interface methods:
// EnsureFolder, Upload, ListFolder
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=sink_gateway_mock.go github.com/fimiwatch/tweetvault/internal/core SinkGateway

// Generate mock for EstimateCache interface from internal/core package.
// This creates MockEstimateCache with methods for all EstimateCache interface methods:
// Get, Set
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=estimate_cache_mock.go github.com/fimiwatch/tweetvault/internal/core EstimateCache

// Generate mock for CredentialStore interface from internal/core package.
// This creates MockCredentialStore with methods for all CredentialStore interface methods:
// Resolve, Store
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=credential_store_mock.go github.com/fimiwatch/tweetvault/internal/core CredentialStore
