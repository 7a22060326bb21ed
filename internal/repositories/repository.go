package repositories

import "context"

// Repository aggregates every repository the session engine consumes.
type Repository interface {
	// Quiz configuration domain (read-mostly for this service)
	Quiz() QuizRepository

	// Question bank domain
	QuestionBank() QuestionBankRepository

	// Session progress domain
	Session() SessionRepository

	// Transaction support
	WithTransaction(ctx context.Context, fn func(Repository) error) error

	// Health check
	Ping(ctx context.Context) error

	// Close connections
	Close() error
}

// RepositoryManager interface for managing repository lifecycle
type RepositoryManager interface {
	// Initialize repositories with database connections
	Initialize() error

	// Get repository instance
	GetRepository() Repository

	// Health check for all repositories
	HealthCheck(ctx context.Context) error

	// Graceful shutdown
	Shutdown(ctx context.Context) error
}
