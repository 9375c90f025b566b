package sandbox

// bootstrapScript is the Python process the Sandbox spawns for every
// LoadCallable. It:
//   1. installs an import guard honoring the allowed-imports allow-list,
//   2. strips the fixed, deployment-wide deny-listed builtins,
//   3. execs the submitted source in a restricted namespace,
//   4. resolves the required function by name,
//   5. serves a line-delimited JSON call protocol over stdin/stdout so the
//      Go side can drive repeated calls against the same process (needed so
//      closures/internal state survive across calls within one evaluator
//      pass, per spec.md §4.2's isolation contract),
//   6. echoes the call argument's post-call state back as "input_after" on
//      every call response, since the Go side has no other way to observe
//      whether a submitted function mutated its argument in place — this is
//      what the no_mutation rule archetype compares against the pre-call
//      snapshot taken on the Go side.
//
// Every protocol message is exactly one line of JSON; this keeps the Go side
// a trivial bufio.Scanner loop and needs no external serialization library
// on the Python side.
const bootstrapScript = `
import builtins
import importlib.abc
import importlib.machinery
import json
import sys
import traceback

ALLOWED_IMPORTS = set(filter(None, sys.argv[2].split(",")))
DENIED_BUILTINS = set(filter(None, sys.argv[3].split(",")))
SOURCE_PATH = sys.argv[1]


class _ImportGuard(importlib.abc.MetaPathFinder):
    def find_spec(self, name, path, target=None):
        top = name.split(".", 1)[0]
        if top in ALLOWED_IMPORTS:
            return None  # defer to normal machinery
        raise ImportError("import of %r is not allowed" % name)


def _install_import_guard():
    sys.meta_path.insert(0, _ImportGuard())


def _restricted_builtins():
    safe = dict(vars(builtins))
    for name in DENIED_BUILTINS:
        safe.pop(name, None)
    real_import = builtins.__import__

    def guarded_import(name, globals=None, locals=None, fromlist=(), level=0):
        if level == 0 and name.split(".", 1)[0] not in ALLOWED_IMPORTS:
            raise ImportError("import of %r is not allowed" % name)
        return real_import(name, globals, locals, fromlist, level)

    safe["__import__"] = guarded_import
    return safe


def _emit(obj):
    sys.stdout.write(json.dumps(obj))
    sys.stdout.write("\n")
    sys.stdout.flush()


def main():
    _install_import_guard()

    try:
        with open(SOURCE_PATH, "r", encoding="utf-8") as f:
            source = f.read()
    except OSError as exc:
        _emit({"phase": "load", "ok": False, "error_type": "RuntimeException", "message": str(exc)})
        return

    try:
        compiled = compile(source, "<solution>", "exec")
    except SyntaxError as exc:
        _emit({"phase": "load", "ok": False, "error_type": "SyntaxError", "message": str(exc)})
        return

    namespace = {"__builtins__": _restricted_builtins()}
    try:
        exec(compiled, namespace)
    except ImportError as exc:
        _emit({"phase": "load", "ok": False, "error_type": "ImportViolation", "message": str(exc)})
        return
    except Exception as exc:  # noqa: BLE001 - boundary must never crash
        _emit({"phase": "load", "ok": False, "error_type": "RuntimeException", "message": str(exc)})
        return

    function_name = sys.argv[4]
    fn = namespace.get(function_name)
    if not callable(fn):
        _emit({"phase": "load", "ok": False, "error_type": "MissingFunction",
               "message": "function %r was not defined" % function_name})
        return

    _emit({"phase": "load", "ok": True})

    for line in sys.stdin:
        line = line.strip()
        if not line:
            continue
        try:
            request = json.loads(line)
        except json.JSONDecodeError as exc:
            _emit({"phase": "call", "ok": False, "error_type": "RuntimeException", "message": str(exc)})
            continue

        if request.get("op") == "quit":
            return

        call_input = request["input"]
        try:
            result = fn(call_input)
            _emit({"phase": "call", "ok": True, "output": result, "input_after": call_input})
        except ImportError as exc:
            _emit({"phase": "call", "ok": False, "error_type": "ImportViolation", "message": str(exc),
                   "input_after": call_input})
        except Exception as exc:  # noqa: BLE001 - boundary must never crash
            _emit({
                "phase": "call",
                "ok": False,
                "error_type": "RuntimeException",
                "message": "%s: %s" % (type(exc).__name__, exc),
                "traceback": traceback.format_exc(),
                "input_after": call_input,
            })


if __name__ == "__main__":
    main()
`
