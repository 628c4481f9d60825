package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/andreyvit/zedb"
)

func printEntity(w io.Writer, format string, e *zedb.Entity) error {
	data, err := json.Marshal(e.AsMap())
	if err != nil {
		return err
	}
	if format == "json" {
		_, err = fmt.Fprintln(w, string(data))
	} else {
		_, err = fmt.Fprintf(w, "%s %s\n", e.StoreKey(), data)
	}
	return err
}

func printJSON(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
