// Package mocks provides mock implementations of the core ports for testing jobwatch services.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the
// interfaces in internal/core. To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	fetcher := mocks.NewMockJobStatusFetcher(ctrl)
//	fetcher.EXPECT().FetchJobs(gomock.Any(), gomock.Any()).Return(jobs, nil)
package mocks

// Generate mock for JobStatusFetcher interface from internal/core package.
// This creates MockJobStatusFetcher with methods: FetchJobs
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_status_fetcher_mock.go github.com/skillsfundingagency/cfs-jobwatch/internal/core JobStatusFetcher

// Generate mock for PublishedDateFetcher interface from internal/core package.
// This creates MockPublishedDateFetcher with methods: LatestPublishedDate
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=published_date_fetcher_mock.go github.com/skillsfundingagency/cfs-jobwatch/internal/core PublishedDateFetcher

// Generate mock for PushTransport interface from internal/core package.
// This creates MockPushTransport with methods: Connect, Watch, Unwatch, Close
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=push_transport_mock.go github.com/skillsfundingagency/cfs-jobwatch/internal/core PushTransport

// Generate mock for ErrorReporter interface from internal/core package.
// This creates MockErrorReporter with methods: ReportError
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=error_reporter_mock.go github.com/skillsfundingagency/cfs-jobwatch/internal/core ErrorReporter

// Generate mock for OutcomeRepository interface from internal/core package.
// This creates MockOutcomeRepository with methods: Record, ListBySpecification
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=outcome_repository_mock.go github.com/skillsfundingagency/cfs-jobwatch/internal/core OutcomeRepository

// Generate mock for ClaimStore interface from internal/core package.
// This creates MockClaimStore with methods: Claim, Release
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=claim_store_mock.go github.com/skillsfundingagency/cfs-jobwatch/internal/core ClaimStore

// Generate mock for JobEventPublisher interface from internal/core package.
// This creates MockJobEventPublisher with methods: Publish
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_event_publisher_mock.go github.com/skillsfundingagency/cfs-jobwatch/internal/core JobEventPublisher
