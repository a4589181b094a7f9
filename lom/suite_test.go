package lom

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestLOMSuite(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "lom subscription/deletion-queue suite")
}
