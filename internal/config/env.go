package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotenv carrega .env (ou os arquivos passados) no ambiente do processo.
// Variáveis já definidas não são sobrescritas.
func LoadDotenv(files ...string) error {
	return godotenv.Load(files...)
}

// fromEnv preenche cfg (ponteiro pra struct) a partir das tags `env`:
//
//	`env:"KEY"`          obrigatório
//	`env:"KEY,default"`  opcional
//
// Structs aninhadas são percorridas.
func fromEnv(cfg any) error {
	v := reflect.ValueOf(cfg)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config: expected a pointer to a struct, got %T", cfg)
	}
	return parseStruct(v.Elem())
}

func parseStruct(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if field.Kind() == reflect.Struct {
			if err := parseStruct(field); err != nil {
				return err
			}
			continue
		}

		tag := fieldType.Tag.Get("env")
		if tag == "" {
			continue
		}
		key, def, hasDefault := parseTag(tag)

		raw, err := resolveValue(key, def, hasDefault)
		if err != nil {
			return err
		}
		if err := setField(field, key, raw); err != nil {
			return err
		}
	}
	return nil
}

func parseTag(tag string) (key, def string, hasDefault bool) {
	parts := strings.SplitN(tag, ",", 2)
	key = strings.TrimSpace(parts[0])
	if len(parts) == 2 {
		return key, strings.TrimSpace(parts[1]), true
	}
	return key, "", false
}

func resolveValue(key, def string, hasDefault bool) (string, error) {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val, nil
	}
	if hasDefault {
		return def, nil
	}
	return "", fmt.Errorf("missing required env variable %s", key)
}

func setField(field reflect.Value, key, raw string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if raw == "" {
			field.SetInt(0)
			return nil
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: cannot parse %q as int: %w", key, raw, err)
		}
		field.SetInt(n)

	case reflect.Bool:
		if raw == "" {
			field.SetBool(false)
			return nil
		}
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("%s: cannot parse %q as bool (use true/false/1/0): %w", key, raw, err)
		}
		field.SetBool(b)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("%s: cannot parse %q as float: %w", key, raw, err)
		}
		field.SetFloat(f)

	default:
		return fmt.Errorf("%s: unsupported type %s", key, field.Kind())
	}
	return nil
}
