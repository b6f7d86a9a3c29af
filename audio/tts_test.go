package audio

import (
	"reflect"
	"testing"
)

var testLanguages = map[string]string{"hi": "hi", "mr": "hi"}

func TestSelectLanguage(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
	}{
		{"english", "This is a short story about the history of the old harbour town and its people.", "en"},
		{"hindi", "यह एक छोटी सी कहानी है जो हमारे गाँव के लोगों के बारे में है और उनके जीवन के बारे में बताती है।", "hi"},
		{"empty", "   ", "en"},
		{"unlisted language", "Ceci est une petite histoire sur la vieille ville portuaire et ses habitants.", "en"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := selectLanguage(tc.text, testLanguages, "en"); got != tc.want {
				t.Fatalf("selectLanguage(%q) = %q, want %q", tc.text, got, tc.want)
			}
		})
	}
}

func TestTTSInvocation(t *testing.T) {
	name, args, stdin := ttsInvocation("gtts-cli", "hi", "-dash first", "/tmp/v.mp3")
	if name != "gtts-cli" || stdin != "-dash first" {
		t.Fatalf("gtts should read text from stdin, got %s %v %q", name, args, stdin)
	}
	if !reflect.DeepEqual(args, []string{"--lang", "hi", "--output", "/tmp/v.mp3", "-"}) {
		t.Fatalf("unexpected gtts args %v", args)
	}

	_, args, _ = ttsInvocation("edge-tts", "xx", "hello", "/tmp/v.mp3")
	if args[1] != "en-US-GuyNeural" {
		t.Fatalf("unknown language should use english voice, got %v", args)
	}

	name, args, _ = ttsInvocation("speak.py", "en", "hello", "/tmp/v.mp3")
	if name != "python3" || args[0] != "speak.py" {
		t.Fatalf("python script not wrapped: %s %v", name, args)
	}

	name, args, _ = ttsInvocation("/usr/local/bin/tts", "en", "hello", "/tmp/v.mp3")
	if name != "/usr/local/bin/tts" || args[len(args)-1] != "/tmp/v.mp3" {
		t.Fatalf("generic command args wrong: %s %v", name, args)
	}
}

func TestParseDuration(t *testing.T) {
	got, err := parseDuration("12.480000\n")
	if err != nil {
		t.Fatalf("parseDuration error: %v", err)
	}
	if got != 12.48 {
		t.Fatalf("got %v", got)
	}
	if _, err := parseDuration("N/A"); err == nil {
		t.Fatalf("expected error for N/A")
	}
}
