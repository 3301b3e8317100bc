package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/llave-asesoria/fiscal/internal/app"
	_ "github.com/llave-asesoria/fiscal/internal/testing/guard"
)

func TestMainSkipsInTestMode(t *testing.T) {
	app.RefreshTestMode()
	require.True(t, app.InTestMode())
	main()
}
