package settings

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

var (
	nodeAdjectives = []string{
		"amber", "brave", "calm", "daring", "eager", "fierce", "gentle", "hidden",
		"icy", "jolly", "keen", "lucky", "mighty", "nimble", "orange", "proud",
		"quiet", "rapid", "silent", "tidy", "upbeat", "vivid", "wild", "young",
	}
	nodeNouns = []string{
		"badger", "comet", "dolphin", "falcon", "glacier", "harbor", "island",
		"jaguar", "kestrel", "lantern", "meadow", "nebula", "otter", "pine",
		"quasar", "raven", "summit", "tiger", "urchin", "valley", "walrus", "zephyr",
	}
)

// GenerateNodeName returns a random "adjective-noun" lightning node alias.
func GenerateNodeName() (string, error) {
	adjective, err := pick(nodeAdjectives)
	if err != nil {
		return "", err
	}
	noun, err := pick(nodeNouns)
	if err != nil {
		return "", err
	}
	return adjective + "-" + noun, nil
}

func pick(words []string) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(words))))
	if err != nil {
		return "", fmt.Errorf("failed to generate node name: %w", err)
	}
	return words[n.Int64()], nil
}
