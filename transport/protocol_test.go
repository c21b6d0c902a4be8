package transport

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/dhuynh95/cryptotree/core/ckkswrapper"

	"github.com/stretchr/testify/require"
	"github.com/tuneinsight/lattigo/v6/core/rlwe"
)

func TestSessionRoundTrip(t *testing.T) {
	he, err := ckkswrapper.NewHeContext(ckkswrapper.ParametersForDepth(11, 30, 40, 2))
	require.NoError(t, err)
	evk := he.EvaluationKeys([]int{1})

	var buf bytes.Buffer
	client := NewProtocol(nil, &buf)
	server := NewProtocol(&buf, nil)

	require.NoError(t, client.SendSetup(he.Params, evk, "abc"))
	params, gotKeys, digest, err := server.ReceiveSetup()
	require.NoError(t, err)
	require.Equal(t, "abc", digest)
	require.Equal(t, he.Params.LogN(), params.LogN())
	require.Equal(t, he.Params.Q(), params.Q())
	require.Equal(t, 0, he.Params.DefaultScale().Cmp(params.DefaultScale()))

	// the server evaluates with the received keys only
	kit := ckkswrapper.NewServerKit(params, gotKeys)
	ct, err := he.EncryptValues([]float64{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, client.SendQuery(7, ct))

	id, query, err := server.ReceiveQuery()
	require.NoError(t, err)
	require.Equal(t, 7, id)
	rotated, err := kit.Worker().RotateNew(query, 1)
	require.NoError(t, err)

	var back bytes.Buffer
	reply := NewProtocol(nil, &back)
	require.NoError(t, reply.SendReady(ReadyPayload{Digest: digest, NClasses: 2}))
	require.NoError(t, reply.SendResult(id, []*rlwe.Ciphertext{query, rotated}))
	require.NoError(t, reply.SendDone())

	read := NewProtocol(&back, nil)
	ready, err := read.ReceiveReady()
	require.NoError(t, err)
	require.Equal(t, 2, ready.NClasses)

	id, cts, err := read.ReceiveResult()
	require.NoError(t, err)
	require.Equal(t, 7, id)
	require.Len(t, cts, 2)
	got, err := he.DecryptValues(cts[1])
	require.NoError(t, err)
	require.InDelta(t, 2, got[0], 1e-4)
	require.InDelta(t, 3, got[1], 1e-4)

	_, _, err = read.ReceiveResult()
	require.ErrorIs(t, err, io.EOF)
}

func TestRemoteErrorAndUnexpectedType(t *testing.T) {
	var buf bytes.Buffer
	w := NewProtocol(nil, &buf)
	require.NoError(t, w.SendError(errors.New("model mismatch")))
	require.NoError(t, w.SendDone())
	require.NoError(t, w.SendReady(ReadyPayload{}))

	r := NewProtocol(&buf, nil)
	_, err := r.ReceiveReady()
	require.ErrorContains(t, err, "model mismatch")

	_, _, err = r.ReceiveQuery()
	require.ErrorIs(t, err, io.EOF)

	_, _, err = r.ReceiveQuery()
	require.ErrorContains(t, err, "expected query message, got ready")
}
