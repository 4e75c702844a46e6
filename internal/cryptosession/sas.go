package cryptosession

// emojiDictionary is the fixed, ordered 256-entry table of human-distinguishable
// tokens used to render the Short Authentication String. It is compiled in
// here rather than loaded from a file so the package is self-contained and
// deterministic in tests. Tokens are short, unique, and chosen to read
// unambiguously aloud or side-by-side on two screens.
var emojiDictionary = [256]string{
	":ant:", ":bee:", ":cat:", ":dog:", ":fox:", ":owl:", ":bat:", ":cow:",
	":pig:", ":ram:", ":hen:", ":elk:", ":yak:", ":ape:", ":jay:", ":koi:",
	":rat:", ":bear:", ":crab:", ":deer:", ":duck:", ":fish:", ":frog:", ":goat:",
	":hare:", ":lion:", ":lynx:", ":mole:", ":moth:", ":mule:", ":newt:", ":orca:",
	":puma:", ":seal:", ":swan:", ":toad:", ":wasp:", ":wolf:", ":worm:", ":zebra:",
	":camel:", ":eagle:", ":gecko:", ":goose:", ":heron:", ":horse:", ":hyena:", ":otter:",
	":panda:", ":perch:", ":quail:", ":raven:", ":robin:", ":shark:", ":sheep:", ":shrew:",
	":skunk:", ":sloth:", ":snail:", ":snake:", ":spider:", ":tiger:", ":turtle:", ":viper:",
	":walrus:", ":weasel:", ":anchor:", ":apple:", ":arrow:", ":badge:", ":banjo:", ":beach:",
	":berry:", ":blade:", ":block:", ":boat:", ":bolt:", ":book:", ":boot:", ":bottle:",
	":bow:", ":box:", ":brick:", ":broom:", ":brush:", ":bucket:", ":cake:", ":candle:",
	":candy:", ":canoe:", ":card:", ":carrot:", ":castle:", ":chain:", ":chair:", ":chalk:",
	":charm:", ":chart:", ":chest:", ":chip:", ":clamp:", ":clip:", ":clock:", ":cloud:",
	":clover:", ":club:", ":coal:", ":coat:", ":coin:", ":comb:", ":comet:", ":cone:",
	":cookie:", ":cord:", ":cork:", ":crane:", ":crayon:", ":crown:", ":cup:", ":curtain:",
	":dart:", ":desk:", ":diamond:", ":dice:", ":disc:", ":dish:", ":dome:", ":door:",
	":drill:", ":drum:", ":drop:", ":ember:", ":engine:", ":fan:", ":feather:", ":fence:",
	":fern:", ":flag:", ":flame:", ":flask:", ":flute:", ":foil:", ":fork:", ":fossil:",
	":frame:", ":fruit:", ":fuel:", ":gate:", ":gear:", ":gem:", ":glass:", ":glove:",
	":glue:", ":goggles:", ":gong:", ":grape:", ":grid:", ":hammer:", ":harp:", ":hat:",
	":helmet:", ":hinge:", ":hive:", ":hook:", ":horn:", ":hourglass:", ":hut:", ":ice:",
	":inkwell:", ":iron:", ":island:", ":jacket:", ":jar:", ":jewel:", ":kettle:", ":key:",
	":kite:", ":knife:", ":knot:", ":ladder:", ":lamp:", ":lantern:", ":leaf:", ":lens:",
	":lever:", ":light:", ":lime:", ":lock:", ":log:", ":loom:", ":lute:", ":magnet:",
	":map:", ":mask:", ":mast:", ":medal:", ":mirror:", ":mitten:", ":moon:", ":mountain:",
	":mug:", ":nail:", ":needle:", ":nest:", ":net:", ":notebook:", ":nut:", ":oar:",
	":oasis:", ":olive:", ":orb:", ":oven:", ":paddle:", ":page:", ":paint:", ":pan:",
	":paper:", ":pearl:", ":pebble:", ":pedal:", ":pen:", ":pencil:", ":phone:", ":piano:",
	":pillow:", ":pin:", ":pipe:", ":plank:", ":plant:", ":plate:", ":plow:", ":plug:",
	":pocket:", ":pod:", ":pond:", ":post:", ":pot:", ":pouch:", ":prism:", ":pump:",
	":puzzle:", ":quill:", ":quilt:", ":raft:", ":rail:", ":rake:", ":ramp:", ":reel:",
	":ribbon:", ":ring:", ":river:", ":robe:", ":rock:", ":rocket:", ":rope:", ":rose:",
}

// sasTokenCount is the number of tokens produced per derived SAS (one per
// byte of SAS-HKDF output).
const sasTokenCount = 4

// sasToTokens maps each of the 4 SAS bytes to its dictionary entry, in
// order, producing the human-verifiable token sequence.
func sasToTokens(sas [sasTokenCount]byte) [sasTokenCount]string {
	var out [sasTokenCount]string
	for i, b := range sas {
		out[i] = emojiDictionary[b]
	}
	return out
}
