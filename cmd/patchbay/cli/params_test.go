// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

type bindingParams struct {
	JSONOutput
	ConfigFlags
	Name       string        `flag:"name,n" desc:"document name"`
	Armor      bool          `flag:"armor" default:"true"`
	Limit      int           `flag:"limit" default:"20"`
	ID         uint64        `flag:"id"`
	Timeout    time.Duration `flag:"timeout" default:"5s"`
	Recipients []string      `flag:"recipient"`
	Untagged   string
}

func TestBindFlags(t *testing.T) {
	var params bindingParams
	flagSet := FlagsFromParams("test", &params)

	for _, name := range []string{"json", "config", "log-level", "name", "armor", "limit", "id", "timeout", "recipient"} {
		if flagSet.Lookup(name) == nil {
			t.Errorf("flag --%s not registered", name)
		}
	}
	if params.Armor != true || params.Limit != 20 || params.Timeout != 5*time.Second {
		t.Errorf("defaults not applied: %+v", params)
	}

	err := flagSet.Parse([]string{
		"--json", "-n", "Lead", "--armor=false", "--id", "42",
		"--recipient", "age1a", "--recipient", "age1b", "-c", "/etc/patchbay.yaml",
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !params.OutputJSON || params.Name != "Lead" || params.Armor || params.ID != 42 {
		t.Errorf("parsed params = %+v", params)
	}
	if strings.Join(params.Recipients, ",") != "age1a,age1b" {
		t.Errorf("Recipients = %v", params.Recipients)
	}
	if params.ConfigFlags.Path != "/etc/patchbay.yaml" {
		t.Errorf("config path = %q", params.ConfigFlags.Path)
	}
}

func TestBindFlags_Rejects(t *testing.T) {
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if err := BindFlags(struct{}{}, flagSet); err == nil {
		t.Error("BindFlags accepted a non-pointer")
	}
	var unsupported struct {
		Ratio float32 `flag:"ratio"`
	}
	if err := BindFlags(&unsupported, flagSet); err == nil {
		t.Error("BindFlags accepted an unsupported field type")
	}
	var badDefault struct {
		Limit int `flag:"limit" default:"many"`
	}
	if err := BindFlags(&badDefault, flagSet); err == nil {
		t.Error("BindFlags accepted an unparseable default")
	}
}

func TestEmitJSON(t *testing.T) {
	var output bytes.Buffer
	previous := Stdout
	Stdout = &output
	t.Cleanup(func() { Stdout = previous })

	var off JSONOutput
	if done, err := off.EmitJSON([]string{"x"}); done || err != nil {
		t.Errorf("EmitJSON without --json = (%v, %v)", done, err)
	}

	on := JSONOutput{OutputJSON: true}
	var entries []string
	if done, err := on.EmitJSON(entries); !done || err != nil {
		t.Fatalf("EmitJSON = (%v, %v)", done, err)
	}
	if strings.TrimSpace(output.String()) != "[]" {
		t.Errorf("nil slice encoded as %q, want []", output.String())
	}
}
