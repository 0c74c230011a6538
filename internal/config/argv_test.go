package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePlayerCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr string
	}{
		{name: "empty", input: "  ", want: nil},
		{name: "commented out", input: `# mpv --no-video`, want: nil},
		{name: "simple", input: "mpv --no-video", want: []string{"mpv", "--no-video"}},
		{name: "double quotes", input: `mpv --title "rehearse prompt"`, want: []string{"mpv", "--title", "rehearse prompt"}},
		{name: "single quotes", input: `mpv --title 'rehearse prompt'`, want: []string{"mpv", "--title", "rehearse prompt"}},
		{name: "escaped space", input: `~/bin/play\ it`, want: []string{"~/bin/play it"}},
		{name: "empty quoted argument", input: `play ""`, want: []string{"play", ""}},
		{name: "placeholder", input: `ffplay -nodisp -i {file}`, want: []string{"ffplay", "-nodisp", "-i", "{file}"}},
		{name: "placeholder twice", input: `play {file} {file}`, wantErr: "may appear once"},
		{name: "placeholder executable", input: `{file} --loud`, wantErr: "executable cannot be"},
		{name: "unterminated quote", input: `mpv "oops`, wantErr: "unterminated quote"},
		{name: "unterminated escape", input: `mpv oops\`, wantErr: "unterminated escape"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParsePlayerCommand(tc.input)
			if tc.wantErr != "" {
				require.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.input, got.Raw)
			require.Equal(t, tc.want, got.Argv)
		})
	}
}
