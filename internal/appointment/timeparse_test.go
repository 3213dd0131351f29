package appointment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTimeToken(t *testing.T) {
	tests := []struct {
		token   string
		want    string
		wantErr bool
	}{
		{token: "9", want: "09:00"},
		{token: "9am", want: "09:00"},
		{token: "9 pm", want: "21:00"},
		{token: "9:30", want: "09:30"},
		{token: "09:30", want: "09:30"},
		{token: "11.30", want: "11:30"},
		{token: "11.30am", want: "11:30"},
		{token: "930", want: "09:30"},
		{token: "0930", want: "09:30"},
		{token: "930pm", want: "21:30"},
		{token: "1430", want: "14:30"},
		{token: "12am", want: "00:00"},
		{token: "12pm", want: "12:00"},
		{token: "12:30am", want: "00:30"},
		{token: "12:30pm", want: "12:30"},
		{token: "23:59", want: "23:59"},
		{token: "0", want: "00:00"},
		{token: "25:00", wantErr: true},
		{token: "24", wantErr: true},
		{token: "9:75", wantErr: true},
		{token: "13pm", wantErr: true},
		{token: "0am", wantErr: true},
		{token: "", wantErr: true},
		{token: "noonish", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.token, func(t *testing.T) {
			got, err := NormalizeTimeToken(tc.token)
			if tc.wantErr {
				var verr *ValidationError
				assert.ErrorAs(t, err, &verr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestExtractTimeToken(t *testing.T) {
	token, ok := ExtractTimeToken("can I come at 9:30 instead")
	require.True(t, ok)
	assert.Equal(t, "9:30", token)

	token, ok = ExtractTimeToken("make it 930pm please")
	require.True(t, ok)
	assert.Equal(t, "930pm", token)

	_, ok = ExtractTimeToken("whatever works for you")
	assert.False(t, ok)
}

func TestExtractOptionIndex(t *testing.T) {
	tests := []struct {
		utterance string
		n         int
		want      int
		ok        bool
	}{
		{utterance: "2", n: 5, want: 2, ok: true},
		{utterance: "option 3", n: 5, want: 3, ok: true},
		{utterance: "#4", n: 5, want: 4, ok: true},
		{utterance: "the first one", n: 5, want: 1, ok: true},
		{utterance: "2nd", n: 5, want: 2, ok: true},
		{utterance: "6", n: 5, ok: false},
		{utterance: "0", n: 5, ok: false},
		{utterance: "option 9", n: 5, ok: false},
		{utterance: "9:30", n: 5, ok: false},
		{utterance: "", n: 5, ok: false},
	}
	for _, tc := range tests {
		t.Run(tc.utterance, func(t *testing.T) {
			got, ok := ExtractOptionIndex(tc.utterance, tc.n)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}
