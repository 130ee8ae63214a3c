package script

import "testing"

func TestPreprocessorInlineIncludes(t *testing.T) {
	files := map[string]string{
		"main.os": "!include helper.os\nset :e1:c:int:x 1\n",
		"helper.os": "set :e1:c:int:y 2\n",
	}
	loader := func(path string) ([]byte, error) { return []byte(files[path]), nil }
	p := NewPreprocessor(loader)

	protos, err := p.Load("main.os")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(protos) != 2 {
		t.Fatalf("Load() returned %d prototypes, want 2", len(protos))
	}
	if protos[0].Name != "set" || protos[0].Args[0] != ":e1:c:int:y" {
		t.Errorf("included prototype out of order: %+v", protos[0])
	}
}

func TestPreprocessorDefineSubstitution(t *testing.T) {
	content := "!define MAXHP 100\nset :e1:c:int:hp MAXHP\n"
	loader := func(path string) ([]byte, error) { return []byte(content), nil }
	p := NewPreprocessor(loader)

	protos, err := p.Load("main.os")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(protos) != 1 || protos[0].Args[1] != "100" {
		t.Fatalf("define substitution failed: %+v", protos)
	}
}

func TestPreprocessorLineContinuation(t *testing.T) {
	content := "print a \\\n  b c\n"
	loader := func(path string) ([]byte, error) { return []byte(content), nil }
	p := NewPreprocessor(loader)

	protos, err := p.Load("main.os")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(protos) != 1 || len(protos[0].Args) != 3 {
		t.Fatalf("continuation join failed: %+v", protos)
	}
}

func TestPreprocessorTagAndOutput(t *testing.T) {
	content := "@loop_start result = get :e1:c:int:hp\n"
	loader := func(path string) ([]byte, error) { return []byte(content), nil }
	p := NewPreprocessor(loader)

	protos, err := p.Load("main.os")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(protos) != 1 {
		t.Fatalf("expected 1 prototype, got %d", len(protos))
	}
	if protos[0].Tag != "loop_start" || protos[0].Output != "result" || protos[0].Name != "get" {
		t.Errorf("tag/output parse failed: %+v", protos[0])
	}
}

func TestPreprocessorIncludeCycleFails(t *testing.T) {
	files := map[string]string{
		"a.os": "!include b.os\n",
		"b.os": "!include a.os\n",
	}
	loader := func(path string) ([]byte, error) { return []byte(files[path]), nil }
	p := NewPreprocessor(loader)

	if _, err := p.Load("a.os"); err == nil {
		t.Error("Load() with an include cycle should fail")
	}
}
