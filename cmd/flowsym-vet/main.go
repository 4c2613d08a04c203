// Command flowsym-vet runs the flowsym analyzer as a go vet tool:
//
//	go vet -vettool=$(which flowsym-vet) ./...
package main

import (
	"golang.org/x/tools/go/analysis/singlechecker"

	"github.com/gnolang/flowsym/internal/analyzer"
)

func main() {
	singlechecker.Main(analyzer.Analyzer)
}
