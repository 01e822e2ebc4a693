package container

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProfile(t *testing.T) {
	tests := []struct {
		expr   string
		active []string
		want   bool
	}{
		{"", nil, true},
		{"   ", []string{"dev"}, true},
		{"dev", []string{"dev"}, true},
		{"dev", []string{"prod"}, false},
		{"!dev", []string{"prod"}, true},
		{"not dev", []string{"dev"}, false},
		{"dev | test", []string{"test"}, true},
		{"dev, test", []string{"qa"}, false},
		{"dev or test", []string{"dev"}, true},
		{"prod & eu", []string{"prod"}, false},
		{"prod and eu", []string{"prod", "eu"}, true},
		{"prod && eu", []string{"prod", "eu"}, true},
		{"dev || test", []string{"test"}, true},
		{"prod & (eu | us)", []string{"prod", "us"}, true},
		{"prod & (eu | us)", []string{"us"}, false},
		{"a | b & c", []string{"a"}, true},
		{"a | b & c", []string{"b"}, false},
		{"!(local | test)", []string{"cloud"}, true},
		{"!!dev", []string{"dev"}, true},
		{"cloud.aws-east_1", []string{"cloud.aws-east_1"}, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.expr, func(t *testing.T) {
			pred, err := parseProfile(tt.expr)
			require.NoError(t, err)

			active := make(map[string]bool)
			for _, p := range tt.active {
				active[p] = true
			}
			assert.Equal(t, tt.want, pred(active))
		})
	}
}

func TestParseProfile_Errors(t *testing.T) {
	for _, expr := range []string{"dev &", "(dev", "dev)", "& dev", "dev $ test", "!", "dev test", "()"} {
		expr := expr
		t.Run(expr, func(t *testing.T) {
			_, err := parseProfile(expr)
			assert.Error(t, err)
		})
	}
}

func TestActivate(t *testing.T) {
	recipe := func(Args) (any, error) { return nil, nil }
	decls := []*Declaration{
		{ID: "always", Recipe: recipe},
		{ID: "store", Profile: "dev", Recipe: recipe},
		{ID: "store", Profile: "!dev", Recipe: recipe},
		{ID: "cloud", Profile: "cloud", Recipe: recipe},
	}

	active, err := activate(decls, []string{" dev "})
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Same(t, decls[0], active[0])
	assert.Same(t, decls[1], active[1])
}

func TestActivate_BadPredicateNamesDeclaration(t *testing.T) {
	decls := []*Declaration{{ID: "broken", Profile: "dev &"}}

	_, err := activate(decls, nil)

	var aerr *ActivationEvaluationError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "broken", aerr.Declaration)
	assert.Equal(t, "dev &", aerr.Expression)
}
