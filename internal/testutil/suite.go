// Package testutil provides a shared test suite base for msgbus packages.
package testutil

import (
	"context"

	"github.com/stretchr/testify/suite"
)

// Suite embeds testify's suite.Suite and seeds a context per test.
type Suite struct {
	suite.Suite
	Ctx context.Context
}

// SetupTest runs before each test method in the suite.
func (s *Suite) SetupTest() {
	s.Ctx = context.Background()
}
