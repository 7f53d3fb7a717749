package e2e

import (
	"chat-relay/domain"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type RelayScenarioSuite struct {
	BaseRelaySuite
}

func TestRelayScenario(t *testing.T) {
	suite.Run(t, new(RelayScenarioSuite))
}

// Walks the whole client lifecycle against a real server: join, moderated
// broadcast, retry dedup, drop and resume, then the operator surface.
func (s *RelayScenarioSuite) Test_Full_Client_Lifecycle() {
	req := s.Require()

	s.Step("Two participants join and see each other")
	alice := s.Connect("alice", "")
	defer alice.Close()
	req.False(alice.Recovered)
	alice.Send(map[string]any{"type": "identity", "name": "alice"})
	alice.ExpectPresenceCount(1)

	bob := s.Connect("bob", "")
	defer bob.Close()
	bob.Send(map[string]any{"type": "identity", "name": "bob"})
	alice.ExpectPresenceCount(2)
	bob.ExpectPresenceCount(2)

	s.Step("A profane message is masked before anyone sees it")
	alice.Send(map[string]any{"type": "message", "content": "damn right", "client_offset": "a-1"})
	ack := alice.Expect("ack")
	req.Equal("success", ack["status"])
	req.Equal(float64(1), ack["id"])

	broadcast := bob.Expect("message")
	req.Equal("alice", broadcast["author"])
	req.Equal("**** right", broadcast["content"])

	s.Step("Retrying the same offset acks without a second broadcast")
	alice.Send(map[string]any{"type": "message", "content": "damn right", "client_offset": "a-1"})
	retry := alice.Expect("ack")
	req.Equal("duplicate", retry["status"])
	req.Equal(ack["id"], retry["id"])

	s.Step("A dropped participant resumes without replay")
	token := bob.ResumeToken
	bob.Close()
	alice.ExpectPresenceCount(1)

	alice.Send(map[string]any{"type": "message", "content": "still there?", "client_offset": "a-2"})
	alice.Expect("ack")

	bob = s.Connect("bob", "resume="+token)
	defer bob.Close()
	req.True(bob.Recovered)
	parked := bob.Expect("message")
	req.Equal("still there?", parked["content"])
	req.Equal(float64(2), parked["id"])

	s.Step("The history endpoint serves the moderated log")
	resp, err := http.Get(s.Server.URL + "/history?offset=0")
	req.NoError(err)
	defer resp.Body.Close()
	var history []domain.Message
	req.NoError(json.NewDecoder(resp.Body).Decode(&history))
	req.Len(history, 2)
	req.Equal("**** right", history[0].Content)
	req.Equal(uint64(2), history[1].ID)

	s.Step("The stats endpoint reflects the scenario")
	req.Eventually(func() bool {
		resp, err := http.Get(s.Server.URL + "/stats")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var snapshot struct {
			MessagesAccepted uint64 `json:"messages_accepted"`
			DuplicateRetries uint64 `json:"duplicate_retries"`
			ResumesServed    uint64 `json:"resumes_served"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
			return false
		}
		return snapshot.MessagesAccepted == 2 && snapshot.DuplicateRetries == 1 && snapshot.ResumesServed == 1
	}, 3*time.Second, 100*time.Millisecond)
}
