package moderation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Censor_Masks_Whole_Word(t *testing.T) {
	req := require.New(t)
	moderator, err := NewModerator([]string{"damn"}, '*')
	req.NoError(err)

	req.Equal("**** right", moderator.Censor("damn right"))
}

func Test_Censor_Ignores_Case_And_Punctuation(t *testing.T) {
	req := require.New(t)
	moderator, err := NewModerator([]string{"damn"}, '*')
	req.NoError(err)

	// Decorated and split spellings are still caught
	req.Equal("******", moderator.Censor("D.a-mn"))
	req.Equal("****!", moderator.Censor("DAMN!"))
}

func Test_Censor_Leaves_Clean_Text_Untouched(t *testing.T) {
	req := require.New(t)
	moderator, err := NewModerator([]string{"damn"}, '*')
	req.NoError(err)

	clean := "what a lovely morning"
	req.Equal(clean, moderator.Censor(clean))
}

func Test_Censor_Handles_Multiple_Matches(t *testing.T) {
	req := require.New(t)
	moderator, err := NewModerator([]string{"damn", "crap"}, '*')
	req.NoError(err)

	req.Equal("**** this **** thing", moderator.Censor("damn this crap thing"))
}

func Test_NewModerator_Rejects_Empty_List(t *testing.T) {
	_, err := NewModerator(nil, '*')
	require.Error(t, err)
}

func Test_Embedded_Word_Lists_Load(t *testing.T) {
	req := require.New(t)
	moderator, err := NewEmbeddedModerator('*')
	req.NoError(err)
	req.NotEqual("damn", moderator.Censor("damn"))
}
