package utils

import (
	"bufio"
	"encoding/binary"
	"os"
	"strings"

	"github.com/twmb/murmur3"
)

// HashInts hashes a sequence of indices; equal sequences always share a hash.
func HashInts(values []int) uint64 {
	hash := murmur3.New64()
	buf := make([]byte, binary.MaxVarintLen64)
	for _, v := range values {
		n := binary.PutVarint(buf, int64(v))
		if _, err := hash.Write(buf[:n]); err != nil {
			panic(err)
		}
	}
	return hash.Sum64()
}

// ReadMap reads "key|value" lines. Blank lines and lines starting with '#' are skipped.
func ReadMap(filePath string) (map[string]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)

	result := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if len(line) == 0 || strings.HasPrefix(line, "#") {
			continue
		}
		p := strings.SplitN(line, "|", 2)
		if len(p) < 2 {
			continue
		}
		result[p[0]] = p[1]
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
