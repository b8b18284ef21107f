// SPDX-License-Identifier: MPL-2.0

package engine_test

import (
	"errors"
	"reflect"
	"testing"

	"coqpkg/pkg/engine"
)

func TestDecode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want engine.Message
	}{
		{"boot", `["Boot"]`, engine.Boot{}},
		{"added", `["Added", 5, {"bp":0}]`, engine.Added{SID: 5}},
		{"compiled", `["Compiled", "/lib/A.vo"]`, engine.Compiled{Path: "/lib/A.vo"}},
		{"json exn", `["JsonExn", "bad command"]`, engine.JSONExn{Msg: "bad command"}},
		{"loaded pkg list", `["LoadedPkg", ["+init", "arith.coq-pkg"]]`, engine.LoadedPkg{URIs: []string{"+init", "arith.coq-pkg"}}},
		{"loaded pkg single", `["LoadedPkg", "+init"]`, engine.LoadedPkg{URIs: []string{"+init"}}},
		{
			"lib progress",
			`["LibProgress", {"uri": "x.coq-pkg", "done": false, "download": {"downloaded": 10, "total": 40}}]`,
			engine.LibProgress{URI: "x.coq-pkg", Downloaded: 10, Total: 40},
		},
		{"lib error", `["LibError", "x.coq-pkg", "404"]`, engine.LibError{URI: "x.coq-pkg", Msg: "404"}},
		{
			"pending",
			`["Pending", 7, "Coq", ["Arith.PeanoNat", "Lists.List"]]`,
			engine.Pending{SID: 7, Prefix: "Coq", ModRefs: []string{"Arith.PeanoNat", "Lists.List"}},
		},
		{"pending without prefix", `["Pending", 7, null, ["List"]]`, engine.Pending{SID: 7, ModRefs: []string{"List"}}},
		{"got", `["Got", "/lib/A.vo", "AQI="]`, engine.Got{Path: "/lib/A.vo", Data: []byte{1, 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := engine.Decode([]byte(tt.in))
			if err != nil {
				t.Fatalf("Decode() failed: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Decode() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestDecode_Opaque(t *testing.T) {
	t.Parallel()
	msg, err := engine.Decode([]byte(`["CoqExn", null, null, "Syntax error"]`))
	if err != nil {
		t.Fatal(err)
	}
	exn, ok := msg.(engine.CoqExn)
	if !ok || exn.Text() != "Syntax error" || !engine.IsFatal(msg) {
		t.Errorf("Decode() = %#v", msg)
	}

	msg, err = engine.Decode([]byte(`["GoalInfo", 3, null]`))
	if err != nil {
		t.Fatal(err)
	}
	if u, ok := msg.(engine.Unknown); !ok || u.Tag() != "GoalInfo" || len(u.Args) != 2 {
		t.Errorf("Decode() = %#v, want Unknown GoalInfo", msg)
	}
}

func TestDecode_Malformed(t *testing.T) {
	t.Parallel()
	for _, in := range []string{`{}`, `[]`, `[1]`, `["Compiled", 3]`, `not json`} {
		if _, err := engine.Decode([]byte(in)); !errors.Is(err, engine.ErrMalformedMessage) {
			t.Errorf("Decode(%s) error = %v, want ErrMalformedMessage", in, err)
		}
	}
}

func TestDecodeBatch(t *testing.T) {
	t.Parallel()
	msgs, err := engine.DecodeBatch([]byte(`[["Ready"], ["Feedback", {"contents": []}], ["Loaded", 1]]`))
	if err != nil {
		t.Fatal(err)
	}
	var tags []string
	for _, m := range msgs {
		tags = append(tags, m.Tag())
	}
	if !reflect.DeepEqual(tags, []string{"Ready", "Feedback", "Loaded"}) {
		t.Errorf("tags = %v", tags)
	}
}

func TestEncode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		cmd  engine.Command
		want string
	}{
		{engine.Init{TopName: "LF.Basics"}, `["Init",{"top_name":"LF.Basics"}]`},
		{engine.Init{}, `["Init",{}]`},
		{engine.Add{SID: 5, Text: "Check nat.", Resolve: true}, `["Add",null,5,"Check nat.",true]`},
		{engine.Load{Path: "/lib/LF/Basics.v"}, `["Load","/lib/LF/Basics.v"]`},
		{engine.Compile{Path: "/lib/LF/Basics.vo"}, `["Compile","/lib/LF/Basics.vo"]`},
		{engine.Put{Path: "/lib/A.v", Data: []byte{1, 2}}, `["Put","/lib/A.v","AQI="]`},
		{engine.LoadPkg{URIs: []string{"+init"}}, `["LoadPkg",["+init"]]`},
		{engine.RefreshLoadPath{}, `["RefreshLoadPath"]`},
	}
	for _, tt := range tests {
		got, err := engine.Encode(tt.cmd)
		if err != nil {
			t.Fatalf("Encode(%s) failed: %v", tt.cmd.Tag(), err)
		}
		if string(got) != tt.want {
			t.Errorf("Encode(%s) = %s, want %s", tt.cmd.Tag(), got, tt.want)
		}
	}
}
