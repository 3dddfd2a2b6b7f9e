package sigv4

import (
	"bytes"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildChunkedBody encodes chunks the way a streaming SigV4 client would,
// computing each chunk-signature from the rolling seed so the reader under
// test can verify the chain end to end.
func buildChunkedBody(seed *Result, chunks [][]byte) []byte {
	var buf bytes.Buffer
	for _, chunk := range chunks {
		sig := seed.nextChunkSignature(chunk)
		fmt.Fprintf(&buf, "%x;chunk-signature=%s\r\n", len(chunk), sig)
		buf.Write(chunk)
		buf.WriteString("\r\n")
		seed.seedSignature = sig
	}
	finalSig := seed.nextChunkSignature(nil)
	fmt.Fprintf(&buf, "0;chunk-signature=%s\r\n\r\n", finalSig)
	return buf.Bytes()
}

func testSeed() *Result {
	key := signingKey(testSecretKey, "20240115", testRegion, Service)
	return &Result{
		seedSignature: "0000000000000000000000000000000000000000000000000000000000000000",
		credScope:     scope("20240115", testRegion, Service),
		signingKey:    key,
		amzDate:       "20240115T120000Z",
	}
}

func TestChunkedReaderRoundTrip(t *testing.T) {
	seed := testSeed()
	body := buildChunkedBody(seed, [][]byte{[]byte("hello, "), []byte("world!")})

	verifySeed := testSeed()
	reader := NewChunkedReader(bytes.NewReader(body), verifySeed)

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.Equal(t, "hello, world!", string(data))
}

func TestChunkedReaderRejectsTamperedChunk(t *testing.T) {
	seed := testSeed()
	body := buildChunkedBody(seed, [][]byte{[]byte("hello")})

	// flip a byte in the chunk data without recomputing its signature
	tampered := bytes.Replace(body, []byte("hello"), []byte("jello"), 1)

	verifySeed := testSeed()
	reader := NewChunkedReader(bytes.NewReader(tampered), verifySeed)

	_, err := io.ReadAll(reader)
	require.ErrorIs(t, err, ErrChunkSignatureMismatch)
}

func TestChunkedReaderEmptyBody(t *testing.T) {
	seed := testSeed()
	body := buildChunkedBody(seed, nil)

	verifySeed := testSeed()
	reader := NewChunkedReader(bytes.NewReader(body), verifySeed)

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.Empty(t, data)
}
