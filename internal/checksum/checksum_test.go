package checksum

import (
	"strings"
	"testing"
)

func TestSum(t *testing.T) {
	// SHA-256 of "abc".
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := Sum([]byte("abc")); got != want {
		t.Errorf("Sum = %s", got)
	}
}

func TestSumReaderMatchesSum(t *testing.T) {
	data := strings.Repeat("frame", 1000)
	sum, n, err := SumReader(strings.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(len(data)) || sum != Sum([]byte(data)) {
		t.Errorf("SumReader = %s, %d", sum, n)
	}
}
