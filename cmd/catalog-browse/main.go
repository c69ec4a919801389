// Команда catalog-browse листает каталог витрины постранично, как это делает кнопка «Показать ещё».
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
