package dep2pmesh

import (
	"encoding/json"
	"fmt"

	"github.com/pvieira/beacon/internal/mesh"
)

// The wire form of an envelope is plain JSON. Framing, encryption and radio
// scheduling are dep2p's concern; this codec only has to be stable between
// beacon peers in the same realm.

func encodeEnvelope(env mesh.Envelope) ([]byte, error) {
	if env.MessageID == "" {
		return nil, fmt.Errorf("envelope missing message id")
	}
	return json.Marshal(env)
}

func decodeEnvelope(data []byte) (mesh.Envelope, error) {
	var env mesh.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return mesh.Envelope{}, err
	}
	if env.MessageID == "" {
		return mesh.Envelope{}, fmt.Errorf("envelope missing message id")
	}
	switch env.Kind {
	case mesh.EnvelopeData, mesh.EnvelopeAck, mesh.EnvelopeRead:
	default:
		return mesh.Envelope{}, fmt.Errorf("unknown envelope kind %q", env.Kind)
	}
	return env, nil
}
