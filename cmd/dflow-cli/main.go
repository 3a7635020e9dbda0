// dflow — инструмент командной строки для операторов.
//
// Использование:
//
//	dflow [--api-url URL] [--api-key KEY] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	process   Запуск, прогресс и завершение процессов
//	job       Просмотр job'ов и metadata
//	catalog   Каталог процессов
//	config    Локальный dflow.toml
package main

import (
	"fmt"
	"os"

	"github.com/shaiso/dflow/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	if err := cli.NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
